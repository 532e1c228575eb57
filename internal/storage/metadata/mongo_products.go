package metadata

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"barcode-pipeline/internal/model"
	pkgerrors "barcode-pipeline/pkg/errors"
)

type productDoc struct {
	ID              string    `bson:"_id"`
	EAN             string    `bson:"ean"`
	UPC             string    `bson:"upc,omitempty"`
	EAN8            string    `bson:"ean8,omitempty"`
	AdditionalCodes []string  `bson:"additional_codes,omitempty"`
	Name            string    `bson:"name"`
	Brand           string    `bson:"brand,omitempty"`
	Description     string    `bson:"description,omitempty"`
	Category        string    `bson:"category,omitempty"`
	Active          bool      `bson:"active"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

func docToProduct(d *productDoc) *model.Product {
	return &model.Product{
		ProductID:       d.ID,
		EAN:             d.EAN,
		UPC:             d.UPC,
		EAN8:            d.EAN8,
		AdditionalCodes: d.AdditionalCodes,
		Name:            d.Name,
		Brand:           d.Brand,
		Description:     d.Description,
		Category:        d.Category,
		Active:          d.Active,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// MongoProductRepository implements ProductRepository against the
// "products" collection. Products are seeded out of band (a catalog
// import, not a pipeline operation), so this repository is read-only.
type MongoProductRepository struct {
	coll *mongo.Collection
}

func NewMongoProductRepository(db *mongo.Database) *MongoProductRepository {
	return &MongoProductRepository{coll: db.Collection("products")}
}

func (r *MongoProductRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "ean", Value: 1}}},
		{Keys: bson.D{{Key: "upc", Value: 1}}},
		{Keys: bson.D{{Key: "ean8", Value: 1}}},
		{Keys: bson.D{{Key: "additional_codes", Value: 1}}},
	})
	if err != nil {
		return pkgerrors.WithKind(pkgerrors.Wrap(err, "ensure product indexes"), pkgerrors.KindFatalConfig)
	}
	return nil
}

func (r *MongoProductRepository) Get(ctx context.Context, productID string) (*model.Product, error) {
	var d productDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": productID}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, pkgerrors.WithKind(pkgerrors.Wrapf(pkgerrors.ErrNotFound, "product %s", productID), pkgerrors.KindInputInvalid)
	}
	if err != nil {
		return nil, pkgerrors.WithKind(pkgerrors.Wrapf(err, "get product %s", productID), pkgerrors.KindTransient)
	}
	return docToProduct(&d), nil
}

// FindByCode looks a barcode up across ean/upc/ean8/additional_codes, the
// lookup Stage Handlers use to populate Detection.ProductFound.
func (r *MongoProductRepository) FindByCode(ctx context.Context, code string) (*model.Product, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"ean": code},
		bson.M{"upc": code},
		bson.M{"ean8": code},
		bson.M{"additional_codes": code},
	}}
	var d productDoc
	err := r.coll.FindOne(ctx, filter).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.WithKind(pkgerrors.Wrapf(err, "find product by code %s", code), pkgerrors.KindTransient)
	}
	return docToProduct(&d), nil
}

func (r *MongoProductRepository) Close(ctx context.Context) error {
	return nil
}
