// Package listing enumerates databases and collections on a live connection.
package listing

import (
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/rjnmav/mongoscope/internal/connection"
	"github.com/rjnmav/mongoscope/internal/core"
	"github.com/rjnmav/mongoscope/internal/types"
)

// systemDatabases are hidden from browsing unless explicitly requested.
var systemDatabases = map[string]bool{
	"admin":  true,
	"config": true,
	"local":  true,
}

// Databases returns the databases visible on the connection, system databases
// excluded, sorted by name.
func Databases(h *connection.Handle) ([]types.DatabaseInfo, error) {
	if h == nil {
		return nil, &core.NotConnectedError{}
	}

	ctx, cancel := core.ContextWithTimeout()
	defer cancel()

	result, err := h.Client().ListDatabases(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}

	databases := make([]types.DatabaseInfo, 0, len(result.Databases))
	for _, db := range result.Databases {
		if systemDatabases[db.Name] {
			continue
		}
		databases = append(databases, types.DatabaseInfo{
			Name:       db.Name,
			SizeOnDisk: db.SizeOnDisk,
			Empty:      db.Empty,
		})
	}

	sort.Slice(databases, func(i, j int) bool {
		return databases[i].Name < databases[j].Name
	})

	return databases, nil
}

// Collections returns the collections in a database, sorted by name. Document
// counts are estimates and are skipped for views.
func Collections(h *connection.Handle, dbName string) ([]types.CollectionInfo, error) {
	if h == nil {
		return nil, &core.NotConnectedError{}
	}
	if dbName == "" {
		return nil, fmt.Errorf("database name cannot be empty")
	}

	ctx, cancel := core.ContextWithTimeout()
	defer cancel()

	db := h.Client().Database(dbName)

	cursor, err := db.ListCollections(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer cursor.Close(ctx)

	var collections []types.CollectionInfo
	for cursor.Next(ctx) {
		var result bson.M
		if err := cursor.Decode(&result); err != nil {
			continue
		}

		name, _ := result["name"].(string)
		collType := "collection"
		if t, ok := result["type"].(string); ok {
			collType = t
		}

		var count int64
		if collType == "collection" {
			count, _ = db.Collection(name).EstimatedDocumentCount(ctx)
		}

		collections = append(collections, types.CollectionInfo{
			Name:  name,
			Type:  collType,
			Count: count,
		})
	}

	sort.Slice(collections, func(i, j int) bool {
		return collections[i].Name < collections[j].Name
	})

	return collections, nil
}
