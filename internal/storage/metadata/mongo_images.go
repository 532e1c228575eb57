package metadata

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"barcode-pipeline/internal/model"
	pkgerrors "barcode-pipeline/pkg/errors"
)

type imageDoc struct {
	ID              string                   `bson:"_id"`
	BatchID         string                   `bson:"batch_id"`
	SourcePath      string                   `bson:"source_path"`
	SourceFilename  string                   `bson:"source_filename"`
	ExternalID      string                   `bson:"external_id"`
	Status          model.ImageStatus        `bson:"status"`
	StatusUpdatedAt time.Time                `bson:"status_updated_at"`
	Preprocessing   model.PreprocessingInfo  `bson:"preprocessing"`
	Processing      model.ProcessingInfo     `bson:"processing"`
	FinalBlobPath   string                   `bson:"final_blob_path"`
	DetectionCount  int                      `bson:"detection_count"`
	ContentType     string                   `bson:"content_type"`
	FileSizeBytes   int64                    `bson:"file_size_bytes"`
	CreatedAt       time.Time                `bson:"created_at"`
	UpdatedAt       time.Time                `bson:"updated_at"`
}

func imageToDoc(img *model.Image) *imageDoc {
	return &imageDoc{
		ID:              img.ImageID,
		BatchID:         img.BatchID,
		SourcePath:      img.SourcePath,
		SourceFilename:  img.SourceFilename,
		ExternalID:      img.ExternalID,
		Status:          img.Status,
		StatusUpdatedAt: img.StatusUpdatedAt,
		Preprocessing:   img.Preprocessing,
		Processing:      img.Processing,
		FinalBlobPath:   img.FinalBlobPath,
		DetectionCount:  img.DetectionCount,
		ContentType:     img.ContentType,
		FileSizeBytes:   img.FileSizeBytes,
		CreatedAt:       img.CreatedAt,
		UpdatedAt:       img.UpdatedAt,
	}
}

func docToImage(d *imageDoc) *model.Image {
	return &model.Image{
		ImageID:         d.ID,
		BatchID:         d.BatchID,
		SourcePath:      d.SourcePath,
		SourceFilename:  d.SourceFilename,
		ExternalID:      d.ExternalID,
		Status:          d.Status,
		StatusUpdatedAt: d.StatusUpdatedAt,
		Preprocessing:   d.Preprocessing,
		Processing:      d.Processing,
		FinalBlobPath:   d.FinalBlobPath,
		DetectionCount:  d.DetectionCount,
		ContentType:     d.ContentType,
		FileSizeBytes:   d.FileSizeBytes,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// MongoImageRepository implements ImageRepository against the "images"
// collection.
type MongoImageRepository struct {
	coll *mongo.Collection
}

func NewMongoImageRepository(db *mongo.Database) *MongoImageRepository {
	return &MongoImageRepository{coll: db.Collection("images")}
}

func (r *MongoImageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "batch_id", Value: 1}}},
		{Keys: bson.D{{Key: "external_id", Value: 1}}},
	})
	if err != nil {
		return pkgerrors.WithKind(pkgerrors.Wrap(err, "ensure image indexes"), pkgerrors.KindFatalConfig)
	}
	return nil
}

func (r *MongoImageRepository) Create(ctx context.Context, img *model.Image) error {
	_, err := r.coll.InsertOne(ctx, imageToDoc(img))
	if err != nil {
		return pkgerrors.WithKind(pkgerrors.Wrapf(err, "create image %s", img.ImageID), pkgerrors.KindTransient)
	}
	return nil
}

func (r *MongoImageRepository) Get(ctx context.Context, imageID string) (*model.Image, error) {
	var d imageDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": imageID}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, pkgerrors.WithKind(pkgerrors.Wrapf(pkgerrors.ErrNotFound, "image %s", imageID), pkgerrors.KindInputInvalid)
	}
	if err != nil {
		return nil, pkgerrors.WithKind(pkgerrors.Wrapf(err, "get image %s", imageID), pkgerrors.KindTransient)
	}
	return docToImage(&d), nil
}

// CompareAndSave mirrors pg_store.go's UpdateStatus guard: the filter
// pins both _id and the status the caller observed before mutating img,
// so a second handler racing the same lease loses instead of
// clobbering.
func (r *MongoImageRepository) CompareAndSave(ctx context.Context, img *model.Image, expected model.ImageStatus) error {
	filter := bson.M{"_id": img.ImageID, "status": expected}
	res, err := r.coll.ReplaceOne(ctx, filter, imageToDoc(img))
	if err != nil {
		return pkgerrors.WithKind(pkgerrors.Wrapf(err, "save image %s", img.ImageID), pkgerrors.KindTransient)
	}
	if res.MatchedCount == 0 {
		return pkgerrors.WithKind(pkgerrors.Wrapf(ErrConflict, "image %s", img.ImageID), pkgerrors.KindStateConflict)
	}
	return nil
}

func (r *MongoImageRepository) ListByStatus(ctx context.Context, status model.ImageStatus, limit int) ([]*model.Image, error) {
	opts := options.Find().SetSort(bson.D{{Key: "status_updated_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.coll.Find(ctx, bson.M{"status": status}, opts)
	if err != nil {
		return nil, pkgerrors.WithKind(pkgerrors.Wrap(err, "list images by status"), pkgerrors.KindTransient)
	}
	defer cur.Close(ctx)

	var out []*model.Image
	for cur.Next(ctx) {
		var d imageDoc
		if err := cur.Decode(&d); err != nil {
			return nil, pkgerrors.WithKind(pkgerrors.Wrap(err, "decode image"), pkgerrors.KindTransient)
		}
		out = append(out, docToImage(&d))
	}
	return out, cur.Err()
}

func (r *MongoImageRepository) ListByBatch(ctx context.Context, batchID string) ([]*model.Image, error) {
	cur, err := r.coll.Find(ctx, bson.M{"batch_id": batchID})
	if err != nil {
		return nil, pkgerrors.WithKind(pkgerrors.Wrap(err, "list images by batch"), pkgerrors.KindTransient)
	}
	defer cur.Close(ctx)

	var out []*model.Image
	for cur.Next(ctx) {
		var d imageDoc
		if err := cur.Decode(&d); err != nil {
			return nil, pkgerrors.WithKind(pkgerrors.Wrap(err, "decode image"), pkgerrors.KindTransient)
		}
		out = append(out, docToImage(&d))
	}
	return out, cur.Err()
}

func (r *MongoImageRepository) CountByStatus(ctx context.Context) (map[model.ImageStatus]int64, error) {
	cur, err := r.coll.Aggregate(ctx, bson.A{
		bson.M{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}},
	})
	if err != nil {
		return nil, pkgerrors.WithKind(pkgerrors.Wrap(err, "count images by status"), pkgerrors.KindTransient)
	}
	defer cur.Close(ctx)

	out := make(map[model.ImageStatus]int64)
	for cur.Next(ctx) {
		var row struct {
			ID    model.ImageStatus `bson:"_id"`
			Count int64             `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, pkgerrors.WithKind(pkgerrors.Wrap(err, "decode status count"), pkgerrors.KindTransient)
		}
		out[row.ID] = row.Count
	}
	return out, cur.Err()
}

func (r *MongoImageRepository) Close(ctx context.Context) error {
	return nil
}
