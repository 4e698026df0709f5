package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Marga-Ghale/powerline-backend/internal/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	usersCollection      = "users"
	positionsCollection  = "powerline_positions"
	activitiesCollection = "activities"

	positionIndex = "position_1"
	userIDIndex   = "userId_1"
)

// EnsureMongoIndexes creates the indexes the mongo driver relies on. The two
// unique indexes are what turns concurrent claims into duplicate-key errors.
func EnsureMongoIndexes(ctx context.Context, database *mongo.Database) error {
	_, err := database.Collection(positionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "position", Value: 1}}, Options: options.Index().SetUnique(true).SetName(positionIndex)},
		{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true).SetName(userIDIndex)},
		{Keys: bson.D{{Key: "sponsorId", Value: 1}}, Options: options.Index().SetName("sponsorId_1")},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "joinedAt", Value: -1}}, Options: options.Index().SetName("status_1_joinedAt_-1")},
		{Keys: bson.D{{Key: "joinedAt", Value: -1}}, Options: options.Index().SetName("joinedAt_-1")},
	})
	if err != nil {
		return err
	}

	_, err = database.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_1")},
	})
	if err != nil {
		return err
	}

	_, err = database.Collection(activitiesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("userId_1_createdAt_-1")},
		{Keys: bson.D{{Key: "entityType", Value: 1}, {Key: "entityId", Value: 1}}, Options: options.Index().SetName("entity")},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}, Options: options.Index().SetName("createdAt_-1")},
	})
	return err
}

// mapDuplicateKey picks the storage sentinel from the index named in a
// duplicate key error.
func mapDuplicateKey(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, userIDIndex):
		return ErrDuplicateUserPosition
	case strings.Contains(msg, positionIndex):
		return ErrDuplicatePosition
	}
	return err
}

// ============================================
// Positions
// ============================================

type mongoPositionRepository struct {
	col *mongo.Collection
}

func NewMongoPositionRepository(database *mongo.Database) PositionRepository {
	return &mongoPositionRepository{col: database.Collection(positionsCollection)}
}

func (r *mongoPositionRepository) Create(ctx context.Context, p *Position) error {
	p.ID = newDocumentID()
	stamp(&p.CreatedAt, &p.UpdatedAt)
	p.LastActivity = p.JoinedAt

	if _, err := r.col.InsertOne(ctx, p); err != nil {
		return mapDuplicateKey(err)
	}
	return nil
}

func (r *mongoPositionRepository) MaxPosition(ctx context.Context) (int64, error) {
	var top struct {
		Position int64 `bson:"position"`
	}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "position", Value: -1}}).
		SetProjection(bson.M{"position": 1})
	err := r.col.FindOne(ctx, bson.M{}, opts).Decode(&top)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return top.Position, nil
}

func (r *mongoPositionRepository) FindByUserID(ctx context.Context, userID string) (*Position, error) {
	return r.findOne(ctx, bson.M{"userId": userID})
}

func (r *mongoPositionRepository) FindByPosition(ctx context.Context, position int64) (*Position, error) {
	return r.findOne(ctx, bson.M{"position": position})
}

func (r *mongoPositionRepository) FindRange(ctx context.Context, from, to int64) ([]*Position, error) {
	filter := bson.M{"position": bson.M{"$gte": from, "$lte": to}}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "position", Value: 1}}))
}

func (r *mongoPositionRepository) FindFirst(ctx context.Context, limit int) ([]*Position, error) {
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}}).SetLimit(int64(limit))
	return r.find(ctx, bson.M{}, opts)
}

func (r *mongoPositionRepository) FindRecent(ctx context.Context, limit int) ([]*Position, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "joinedAt", Value: -1}, {Key: "position", Value: -1}}).
		SetLimit(int64(limit))
	return r.find(ctx, bson.M{}, opts)
}

func (r *mongoPositionRepository) FindBySponsor(ctx context.Context, sponsorID string) ([]*Position, error) {
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}})
	return r.find(ctx, bson.M{"sponsorId": sponsorID}, opts)
}

func (r *mongoPositionRepository) List(ctx context.Context, filter PositionFilter) ([]*Position, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	bounds := bson.M{}
	if filter.From > 0 {
		bounds["$gte"] = filter.From
	}
	if filter.To > 0 {
		bounds["$lte"] = filter.To
	}
	if len(bounds) > 0 {
		query["position"] = bounds
	}

	total, err := r.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "position", Value: 1}}).
		SetSkip(int64(filter.Offset)).
		SetLimit(int64(filter.Limit))
	positions, err := r.find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return positions, total, nil
}

func (r *mongoPositionRepository) Count(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{})
}

func (r *mongoPositionRepository) CountBefore(ctx context.Context, position int64) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"position": bson.M{"$lt": position}})
}

func (r *mongoPositionRepository) CountAfter(ctx context.Context, position int64) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"position": bson.M{"$gt": position}})
}

func (r *mongoPositionRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"joinedAt": bson.M{"$gte": since}})
}

func (r *mongoPositionRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *mongoPositionRepository) DailyGrowth(ctx context.Context, since time.Time) ([]DailyCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"joinedAt": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$joinedAt"}},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	growth := []DailyCount{}
	if err := cur.All(ctx, &growth); err != nil {
		return nil, err
	}
	return growth, nil
}

// AdvanceStatus runs as an update pipeline so the milestone stamps and the
// notes append are computed from the stored document in one write. The
// replaced status is kept on the document as previousStatus.
func (r *mongoPositionRepository) AdvanceStatus(ctx context.Context, position int64, update StatusUpdate) (*Position, string, error) {
	set := bson.M{
		"status":         update.Status,
		"previousStatus": "$status",
		"lastActivity":   update.At,
		"updatedAt":      update.At,
		"activityCount":  bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$activityCount", 0}}, 1}},
	}
	switch update.Milestone {
	case types.PositionEnrolled:
		set["progression.hasEnrolled"] = true
		set["progression.enrollmentDate"] = bson.M{"$ifNull": bson.A{"$progression.enrollmentDate", update.At}}
	case types.PositionPromoter:
		set["progression.becamePromoter"] = true
		set["progression.promoterDate"] = bson.M{"$ifNull": bson.A{"$progression.promoterDate", update.At}}
	}

	pipeline := mongo.Pipeline{{{Key: "$set", Value: set}}}
	if update.Notes != nil {
		note := bson.M{"$literal": *update.Notes}
		pipeline = append(pipeline,
			bson.D{{Key: "$set", Value: bson.M{"notes": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{"$notes", ""}}, ""}},
				note,
				bson.M{"$concat": bson.A{"$notes", "\n", note}},
			}}}}},
			bson.D{{Key: "$set", Value: bson.M{"notes": bson.M{"$substrCP": bson.A{
				"$notes",
				bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{bson.M{"$strLenCP": "$notes"}, maxNotesLength}}}},
				maxNotesLength,
			}}}}},
		)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc struct {
		Position       `bson:",inline"`
		PreviousStatus string `bson:"previousStatus"`
	}
	err := r.col.FindOneAndUpdate(ctx, bson.M{"position": position}, pipeline, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	p := doc.Position
	return &p, doc.PreviousStatus, nil
}

func (r *mongoPositionRepository) findOne(ctx context.Context, filter bson.M) (*Position, error) {
	p := &Position{}
	err := r.col.FindOne(ctx, filter).Decode(p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *mongoPositionRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]*Position, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	positions := []*Position{}
	if err := cur.All(ctx, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// ============================================
// Users
// ============================================

type mongoUserRepository struct {
	col *mongo.Collection
}

func NewMongoUserRepository(database *mongo.Database) UserRepository {
	return &mongoUserRepository{col: database.Collection(usersCollection)}
}

func (r *mongoUserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = newDocumentID()
	}
	if user.Status == "" {
		user.Status = types.UserActive
	}
	if user.Role == "" {
		user.Role = types.RoleMember
	}
	user.Email = strings.ToLower(user.Email)
	stamp(&user.CreatedAt, &user.UpdatedAt)
	_, err := r.col.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *mongoUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

func (r *mongoUserRepository) Count(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{})
}

func (r *mongoUserRepository) findOne(ctx context.Context, filter bson.M) (*User, error) {
	user := &User{}
	err := r.col.FindOne(ctx, filter).Decode(user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ============================================
// Activities
// ============================================

type mongoActivityRepository struct {
	col *mongo.Collection
}

func NewMongoActivityRepository(database *mongo.Database) ActivityRepository {
	return &mongoActivityRepository{col: database.Collection(activitiesCollection)}
}

func (r *mongoActivityRepository) Create(ctx context.Context, activity *Activity) error {
	activity.ID = newDocumentID()
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, activity)
	return err
}

func (r *mongoActivityRepository) FindByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Activity, error) {
	return r.newestFirst(ctx, bson.M{"entityType": entityType, "entityId": entityID}, limit)
}

func (r *mongoActivityRepository) FindByUser(ctx context.Context, userID string, limit int) ([]*Activity, error) {
	return r.newestFirst(ctx, bson.M{"userId": userID}, limit)
}

func (r *mongoActivityRepository) FindRecent(ctx context.Context, limit int) ([]*Activity, error) {
	return r.newestFirst(ctx, bson.M{}, limit)
}

func (r *mongoActivityRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": olderThan}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (r *mongoActivityRepository) newestFirst(ctx context.Context, filter bson.M, limit int) ([]*Activity, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	activities := []*Activity{}
	if err := cur.All(ctx, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}
