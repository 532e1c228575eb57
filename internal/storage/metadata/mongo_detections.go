package metadata

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"barcode-pipeline/internal/model"
	pkgerrors "barcode-pipeline/pkg/errors"
)

type detectionDoc struct {
	ID                   string                 `bson:"_id"`
	ImageID              string                 `bson:"image_id"`
	BatchID              string                 `bson:"batch_id"`
	SourceFilename       string                 `bson:"source_filename"`
	Code                 string                 `bson:"code"`
	Symbology            model.Symbology        `bson:"symbology"`
	NormalizedCode       string                 `bson:"normalized_code"`
	Source               model.DetectionSource  `bson:"source"`
	Confidence           float64                `bson:"confidence,omitempty"`
	HasConfidence        bool                   `bson:"has_confidence"`
	RotationDegrees      int                    `bson:"rotation_degrees"`
	ChecksumValid        bool                   `bson:"checksum_valid"`
	LengthValid          bool                   `bson:"length_valid"`
	NumericOnly          bool                   `bson:"numeric_only"`
	Ambiguous            bool                   `bson:"ambiguous"`
	Chosen               bool                   `bson:"chosen"`
	Rejected             bool                   `bson:"rejected"`
	ProductFound         bool                   `bson:"product_found"`
	ProductID            string                 `bson:"product_id,omitempty"`
	GeminiConfidence     float64                `bson:"gemini_confidence,omitempty"`
	HasGeminiConfidence  bool                   `bson:"has_gemini_confidence"`
	GeminiSymbologyGuess string                 `bson:"gemini_symbology_guess,omitempty"`
	DetectedAt           time.Time              `bson:"detected_at"`
	ReviewedAt           time.Time              `bson:"reviewed_at,omitempty"`
	ReviewedBy           string                 `bson:"reviewed_by,omitempty"`
}

func detectionToDoc(d *model.Detection) *detectionDoc {
	return &detectionDoc{
		ID:                    d.DetectionID,
		ImageID:               d.ImageID,
		BatchID:               d.BatchID,
		SourceFilename:        d.SourceFilename,
		Code:                  d.Code,
		Symbology:             d.Symbology,
		NormalizedCode:        d.NormalizedCode,
		Source:                d.Source,
		Confidence:            d.Confidence,
		HasConfidence:         d.HasConfidence,
		RotationDegrees:       d.RotationDegrees,
		ChecksumValid:         d.ChecksumValid,
		LengthValid:           d.LengthValid,
		NumericOnly:           d.NumericOnly,
		Ambiguous:             d.Ambiguous,
		Chosen:                d.Chosen,
		Rejected:              d.Rejected,
		ProductFound:          d.ProductFound,
		ProductID:             d.ProductID,
		GeminiConfidence:      d.GeminiConfidence,
		HasGeminiConfidence:   d.HasGeminiConfidence,
		GeminiSymbologyGuess:  d.GeminiSymbologyGuess,
		DetectedAt:            d.DetectedAt,
		ReviewedAt:            d.ReviewedAt,
		ReviewedBy:            d.ReviewedBy,
	}
}

func docToDetection(doc *detectionDoc) *model.Detection {
	return &model.Detection{
		DetectionID:          doc.ID,
		ImageID:              doc.ImageID,
		BatchID:              doc.BatchID,
		SourceFilename:       doc.SourceFilename,
		Code:                 doc.Code,
		Symbology:            doc.Symbology,
		NormalizedCode:       doc.NormalizedCode,
		Source:               doc.Source,
		Confidence:           doc.Confidence,
		HasConfidence:        doc.HasConfidence,
		RotationDegrees:      doc.RotationDegrees,
		ChecksumValid:        doc.ChecksumValid,
		LengthValid:          doc.LengthValid,
		NumericOnly:          doc.NumericOnly,
		Ambiguous:            doc.Ambiguous,
		Chosen:               doc.Chosen,
		Rejected:             doc.Rejected,
		ProductFound:         doc.ProductFound,
		ProductID:            doc.ProductID,
		GeminiConfidence:     doc.GeminiConfidence,
		HasGeminiConfidence:  doc.HasGeminiConfidence,
		GeminiSymbologyGuess: doc.GeminiSymbologyGuess,
		DetectedAt:           doc.DetectedAt,
		ReviewedAt:           doc.ReviewedAt,
		ReviewedBy:           doc.ReviewedBy,
	}
}

// MongoDetectionRepository implements DetectionRepository against the
// "detections" collection.
type MongoDetectionRepository struct {
	coll *mongo.Collection
}

func NewMongoDetectionRepository(db *mongo.Database) *MongoDetectionRepository {
	return &MongoDetectionRepository{coll: db.Collection("detections")}
}

func (r *MongoDetectionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "image_id", Value: 1}}},
		{Keys: bson.D{{Key: "batch_id", Value: 1}}},
		{Keys: bson.D{{Key: "normalized_code", Value: 1}}},
	})
	if err != nil {
		return pkgerrors.WithKind(pkgerrors.Wrap(err, "ensure detection indexes"), pkgerrors.KindFatalConfig)
	}
	return nil
}

func (r *MongoDetectionRepository) Create(ctx context.Context, d *model.Detection) error {
	_, err := r.coll.InsertOne(ctx, detectionToDoc(d))
	if err != nil {
		return pkgerrors.WithKind(pkgerrors.Wrapf(err, "create detection %s", d.DetectionID), pkgerrors.KindTransient)
	}
	return nil
}

func (r *MongoDetectionRepository) Get(ctx context.Context, detectionID string) (*model.Detection, error) {
	var doc detectionDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": detectionID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, pkgerrors.WithKind(pkgerrors.Wrapf(pkgerrors.ErrNotFound, "detection %s", detectionID), pkgerrors.KindInputInvalid)
	}
	if err != nil {
		return nil, pkgerrors.WithKind(pkgerrors.Wrapf(err, "get detection %s", detectionID), pkgerrors.KindTransient)
	}
	return docToDetection(&doc), nil
}

func (r *MongoDetectionRepository) ListByImage(ctx context.Context, imageID string) ([]*model.Detection, error) {
	cur, err := r.coll.Find(ctx, bson.M{"image_id": imageID})
	if err != nil {
		return nil, pkgerrors.WithKind(pkgerrors.Wrap(err, "list detections by image"), pkgerrors.KindTransient)
	}
	defer cur.Close(ctx)

	var out []*model.Detection
	for cur.Next(ctx) {
		var doc detectionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, pkgerrors.WithKind(pkgerrors.Wrap(err, "decode detection"), pkgerrors.KindTransient)
		}
		out = append(out, docToDetection(&doc))
	}
	return out, cur.Err()
}

func (r *MongoDetectionRepository) Save(ctx context.Context, d *model.Detection) error {
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": d.DetectionID}, detectionToDoc(d))
	if err != nil {
		return pkgerrors.WithKind(pkgerrors.Wrapf(err, "save detection %s", d.DetectionID), pkgerrors.KindTransient)
	}
	return nil
}

func (r *MongoDetectionRepository) Close(ctx context.Context) error {
	return nil
}
