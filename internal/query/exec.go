package query

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rjnmav/mongoscope/internal/connection"
	"github.com/rjnmav/mongoscope/internal/core"
	"github.com/rjnmav/mongoscope/internal/types"
)

// mongoExec runs one find (plus optional count) against the driver. Filter
// and projection are opaque until the Extended JSON codec rejects them.
func mongoExec(ctx context.Context, h *connection.Handle, req types.QueryRequest) (*types.QueryResult, error) {
	coll := h.Client().Database(req.Database).Collection(req.Collection)

	filter := bson.M{}
	if req.Filter != "" && req.Filter != "{}" {
		if err := bson.UnmarshalExtJSON([]byte(req.Filter), true, &filter); err != nil {
			return nil, core.NewQueryError(core.QueryInvalidFilterSyntax, err.Error(), err)
		}
	}

	findOpts := options.Find().
		SetSkip(req.Skip).
		SetLimit(req.Limit)

	if req.Projection != "" && req.Projection != "{}" {
		var projection bson.M
		if err := bson.UnmarshalExtJSON([]byte(req.Projection), true, &projection); err != nil {
			return nil, core.NewQueryError(core.QueryInvalidFilterSyntax, err.Error(), err)
		}
		findOpts.SetProjection(projection)
	}

	start := time.Now()

	var total *int64
	if req.WithTotal {
		n, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			return nil, err
		}
		total = &n
	}

	cursor, err := coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var documents []map[string]interface{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		documents = append(documents, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return &types.QueryResult{
		Documents: documents,
		Total:     total,
		Elapsed:   time.Since(start),
	}, nil
}
