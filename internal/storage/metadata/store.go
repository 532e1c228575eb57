package metadata

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"barcode-pipeline/pkg/config"
	pkgerrors "barcode-pipeline/pkg/errors"
)

// Stores bundles the four repositories every Stage Handler and the
// Dispatcher depend on. Grounded on
// _examples/fanjia1024-Aetheris/internal/storage/metadata/store.go's
// single-Store factory, widened to one repository per collection.
type Stores struct {
	Images     ImageRepository
	Detections DetectionRepository
	Jobs       JobRepository
	Products   ProductRepository

	client *mongo.Client
}

// NewStores connects to MongoDB when cfg.URI is set, otherwise returns
// in-memory repositories for local runs and tests.
func NewStores(ctx context.Context, cfg config.MongoConfig) (*Stores, error) {
	if cfg.URI == "" {
		return &Stores{
			Images:     NewMemoryImageRepository(),
			Detections: NewMemoryDetectionRepository(),
			Jobs:       NewMemoryJobRepository(),
			Products:   NewMemoryProductRepository(),
		}, nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, pkgerrors.WithKind(pkgerrors.Wrap(err, "connect mongo"), pkgerrors.KindFatalConfig)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, pkgerrors.WithKind(pkgerrors.Wrap(err, "ping mongo"), pkgerrors.KindFatalConfig)
	}

	db := client.Database(cfg.Database)
	s := &Stores{
		Images:     NewMongoImageRepository(db),
		Detections: NewMongoDetectionRepository(db),
		Jobs:       NewMongoJobRepository(db),
		Products:   NewMongoProductRepository(db),
		client:     client,
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates every index each repository declares, mirroring
// _examples/original_source/scripts/init_indexes.py's one-index-set-per-
// collection approach.
func (s *Stores) EnsureIndexes(ctx context.Context) error {
	if err := s.Images.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := s.Detections.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := s.Jobs.EnsureIndexes(ctx); err != nil {
		return err
	}
	return s.Products.EnsureIndexes(ctx)
}

func (s *Stores) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
