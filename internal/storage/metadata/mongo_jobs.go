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

type jobDoc struct {
	ID           string            `bson:"_id"`
	JobType      model.JobType     `bson:"job_type"`
	ImageID      string            `bson:"image_id"`
	BatchID      string            `bson:"batch_id"`
	Status       model.JobStatus   `bson:"status"`
	Priority     int               `bson:"priority"`
	Attempt      int               `bson:"attempt"`
	MaxRetries   int               `bson:"max_retries"`
	WorkerID     string            `bson:"worker_id,omitempty"`
	StartedAt    time.Time         `bson:"started_at,omitempty"`
	CompletedAt  time.Time         `bson:"completed_at,omitempty"`
	ScheduledFor time.Time         `bson:"scheduled_for"`
	LockUntil    time.Time         `bson:"lock_until,omitempty"`
	Result       map[string]string `bson:"result,omitempty"`
	Error        string            `bson:"error,omitempty"`
	ErrorDetails map[string]string `bson:"error_details,omitempty"`
	CreatedAt    time.Time         `bson:"created_at"`
	UpdatedAt    time.Time         `bson:"updated_at"`
}

func jobToDoc(j *model.Job) *jobDoc {
	return &jobDoc{
		ID:           j.JobID,
		JobType:      j.JobType,
		ImageID:      j.ImageID,
		BatchID:      j.BatchID,
		Status:       j.Status,
		Priority:     j.Priority,
		Attempt:      j.Attempt,
		MaxRetries:   j.MaxRetries,
		WorkerID:     j.WorkerID,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		ScheduledFor: j.ScheduledFor,
		LockUntil:    j.LockUntil,
		Result:       j.Result,
		Error:        j.Error,
		ErrorDetails: j.ErrorDetails,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

func docToJob(d *jobDoc) *model.Job {
	return &model.Job{
		JobID:        d.ID,
		JobType:      d.JobType,
		ImageID:      d.ImageID,
		BatchID:      d.BatchID,
		Status:       d.Status,
		Priority:     d.Priority,
		Attempt:      d.Attempt,
		MaxRetries:   d.MaxRetries,
		WorkerID:     d.WorkerID,
		StartedAt:    d.StartedAt,
		CompletedAt:  d.CompletedAt,
		ScheduledFor: d.ScheduledFor,
		LockUntil:    d.LockUntil,
		Result:       d.Result,
		Error:        d.Error,
		ErrorDetails: d.ErrorDetails,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// MongoJobRepository implements JobRepository against the "jobs"
// collection.
type MongoJobRepository struct {
	coll *mongo.Collection
}

func NewMongoJobRepository(db *mongo.Database) *MongoJobRepository {
	return &MongoJobRepository{coll: db.Collection("jobs")}
}

func (r *MongoJobRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "job_type", Value: 1}, {Key: "status", Value: 1}, {Key: "scheduled_for", Value: 1}}},
		{Keys: bson.D{{Key: "image_id", Value: 1}, {Key: "job_type", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "lock_until", Value: 1}}},
	})
	if err != nil {
		return pkgerrors.WithKind(pkgerrors.Wrap(err, "ensure job indexes"), pkgerrors.KindFatalConfig)
	}
	return nil
}

func (r *MongoJobRepository) Create(ctx context.Context, j *model.Job) error {
	_, err := r.coll.InsertOne(ctx, jobToDoc(j))
	if err != nil {
		return pkgerrors.WithKind(pkgerrors.Wrapf(err, "create job %s", j.JobID), pkgerrors.KindTransient)
	}
	return nil
}

func (r *MongoJobRepository) Get(ctx context.Context, jobID string) (*model.Job, error) {
	var d jobDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": jobID}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, pkgerrors.WithKind(pkgerrors.Wrapf(pkgerrors.ErrNotFound, "job %s", jobID), pkgerrors.KindInputInvalid)
	}
	if err != nil {
		return nil, pkgerrors.WithKind(pkgerrors.Wrapf(err, "get job %s", jobID), pkgerrors.KindTransient)
	}
	return docToJob(&d), nil
}

func (r *MongoJobRepository) ExistsActive(ctx context.Context, jobType model.JobType, imageID string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{
		"image_id": imageID,
		"job_type": jobType,
		"status":   bson.M{"$in": bson.A{model.JobPending, model.JobInProgress}},
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, pkgerrors.WithKind(pkgerrors.Wrap(err, "check active job"), pkgerrors.KindTransient)
	}
	return n > 0, nil
}

// ClaimNext is the Mongo analogue of pg_store.go's
// ClaimNextPendingForWorker: FindOneAndUpdate atomically flips the
// highest-priority, earliest-scheduled eligible job to in_progress in a
// single round trip, so two
// workers racing the same queue never both win. The returned Job already
// reflects model.Job.Start's mutation (attempt incremented, worker_id and
// lock_until set); callers must not call Start on it again.
func (r *MongoJobRepository) ClaimNext(ctx context.Context, jobType model.JobType, workerID string, now time.Time, leaseDuration time.Duration) (*model.Job, error) {
	// Matches either a true pending job or an in_progress job whose lease
	// lapsed (a crashed worker), mirroring
	// _examples/original_source/src/db/repositories/jobs.py's dequeue
	// query_with_expired $or. ReapExpired also resets these explicitly so
	// the dispatcher can report a reap count, but claiming must not wait
	// for that cycle to run.
	filter := bson.M{
		"job_type": jobType,
		"$or": bson.A{
			bson.M{"status": model.JobPending, "scheduled_for": bson.M{"$lte": now}},
			bson.M{"status": model.JobInProgress, "lock_until": bson.M{"$lt": now}},
		},
	}
	update := bson.M{"$set": bson.M{
		"status":     model.JobInProgress,
		"worker_id":  workerID,
		"started_at": now,
		"lock_until": now.Add(leaseDuration),
		"updated_at": now,
	}, "$inc": bson.M{"attempt": 1}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "scheduled_for", Value: 1}}).
		SetReturnDocument(options.After)

	var d jobDoc
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.WithKind(pkgerrors.Wrapf(err, "claim %s job", jobType), pkgerrors.KindTransient)
	}
	return docToJob(&d), nil
}

func (r *MongoJobRepository) Save(ctx context.Context, j *model.Job) error {
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": j.JobID}, jobToDoc(j))
	if err != nil {
		return pkgerrors.WithKind(pkgerrors.Wrapf(err, "save job %s", j.JobID), pkgerrors.KindTransient)
	}
	return nil
}

// ReapExpired mirrors pg_store.go's ReclaimOrphanedJobs: any in_progress
// job whose lease has lapsed goes back to pending for another worker to
// pick up, its attempt count already incremented by the original claim.
func (r *MongoJobRepository) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.coll.UpdateMany(ctx, bson.M{
		"status":     model.JobInProgress,
		"lock_until": bson.M{"$lt": now},
	}, bson.M{"$set": bson.M{
		"status":     model.JobPending,
		"worker_id":  "",
		"lock_until": time.Time{},
		"updated_at": now,
	}})
	if err != nil {
		return 0, pkgerrors.WithKind(pkgerrors.Wrap(err, "reap expired jobs"), pkgerrors.KindTransient)
	}
	return int(res.ModifiedCount), nil
}

func (r *MongoJobRepository) CountByStatus(ctx context.Context) (map[model.JobStatus]int64, error) {
	cur, err := r.coll.Aggregate(ctx, bson.A{
		bson.M{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}},
	})
	if err != nil {
		return nil, pkgerrors.WithKind(pkgerrors.Wrap(err, "count jobs by status"), pkgerrors.KindTransient)
	}
	defer cur.Close(ctx)

	out := make(map[model.JobStatus]int64)
	for cur.Next(ctx) {
		var row struct {
			ID    model.JobStatus `bson:"_id"`
			Count int64           `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, pkgerrors.WithKind(pkgerrors.Wrap(err, "decode status count"), pkgerrors.KindTransient)
		}
		out[row.ID] = row.Count
	}
	return out, cur.Err()
}

func (r *MongoJobRepository) Close(ctx context.Context) error {
	return nil
}
