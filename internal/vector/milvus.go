package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/kazane-dev/kiroku/internal/config"
)

// payloadFields are the varchar fields stored next to each embedding, with
// their maximum lengths. The chunk text rides along so retrieval does not
// need a second lookup.
var payloadFields = []struct {
	name   string
	maxLen int64
}{
	{"text", 65535},
	{"file_id", 64},
	{"file_name", 512},
	{"user_id", 256},
	{"tenant_id", 256},
	{"agent_id", 256},
}

// MilvusIndex implements Index on a Milvus collection. The primary key is a
// varchar carrying the caller-issued chunk id, so upserts and deletes address
// entries by the same id the metadata store uses.
type MilvusIndex struct {
	client     *milvusclient.Client
	collection string
	dimensions int
}

// NewMilvusIndex connects to Milvus and ensures the collection, its index,
// and its load state.
func NewMilvusIndex(ctx context.Context, cfg config.MilvusConfig, dimensions int) (*MilvusIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to milvus: %w", err)
	}

	m := &MilvusIndex{client: client, collection: cfg.Collection, dimensions: dimensions}
	if err := m.ensureCollection(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	return m, nil
}

func (m *MilvusIndex) ensureCollection(ctx context.Context) error {
	exists, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(m.collection))
	if err != nil {
		return fmt.Errorf("check collection existence: %w", err)
	}
	if !exists {
		schema := entity.NewSchema().
			WithName(m.collection).
			WithDescription("knowledge base chunk embeddings").
			WithField(entity.NewField().
				WithName("id").
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(64).
				WithIsPrimaryKey(true)).
			WithField(entity.NewField().
				WithName("embedding").
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(m.dimensions)))
		for _, f := range payloadFields {
			schema.WithField(entity.NewField().
				WithName(f.name).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(f.maxLen))
		}
		if err := m.client.CreateCollection(ctx,
			milvusclient.NewCreateCollectionOption(m.collection, schema)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}

		idx := index.NewIvfFlatIndex(entity.COSINE, 128)
		idxTask, err := m.client.CreateIndex(ctx,
			milvusclient.NewCreateIndexOption(m.collection, "embedding", idx))
		if err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		if err := idxTask.Await(ctx); err != nil {
			return fmt.Errorf("wait for index creation: %w", err)
		}
	}

	loadTask, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(m.collection))
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("wait for collection loading: %w", err)
	}
	return nil
}

// Upsert writes entries keyed by chunk id. Existing ids are replaced.
func (m *MilvusIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]string, len(entries))
	vectors := make([][]float32, len(entries))
	payloads := make(map[string][]string, len(payloadFields))
	for _, f := range payloadFields {
		payloads[f.name] = make([]string, len(entries))
	}
	for i, e := range entries {
		ids[i] = e.ID
		vectors[i] = e.Vector
		for _, f := range payloadFields {
			payloads[f.name][i] = e.Payload[f.name]
		}
	}

	columns := []column.Column{
		column.NewColumnVarChar("id", ids),
		column.NewColumnFloatVector("embedding", m.dimensions, vectors),
	}
	for _, f := range payloadFields {
		columns = append(columns, column.NewColumnVarChar(f.name, payloads[f.name]))
	}

	if _, err := m.client.Upsert(ctx,
		milvusclient.NewColumnBasedInsertOption(m.collection, columns...)); err != nil {
		return fmt.Errorf("upsert into milvus: %w", err)
	}

	// Flush so freshly ingested chunks are immediately searchable.
	flushTask, err := m.client.Flush(ctx, milvusclient.NewFlushOption(m.collection))
	if err != nil {
		return fmt.Errorf("flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("wait for flush: %w", err)
	}
	return nil
}

// Query runs a similarity search restricted by the filter expression.
func (m *MilvusIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	outputFields := make([]string, 0, len(payloadFields))
	for _, f := range payloadFields {
		outputFields = append(outputFields, f.name)
	}

	opt := milvusclient.NewSearchOption(m.collection, topK,
		[]entity.Vector{entity.FloatVector(vector)}).
		WithANNSField("embedding").
		WithOutputFields(outputFields...)
	if expr := filterExpr(filter); expr != "" {
		opt = opt.WithFilter(expr)
	}

	results, err := m.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("search milvus: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	rs := results[0]
	idCol, _ := rs.IDs.(*column.ColumnVarChar)
	matches := make([]Match, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		match := Match{
			Score:   float64(rs.Scores[i]),
			Payload: make(map[string]string, len(payloadFields)),
		}
		if idCol != nil && i < len(idCol.Data()) {
			match.ID = idCol.Data()[i]
		}
		for _, field := range rs.Fields {
			if col, ok := field.(*column.ColumnVarChar); ok && i < len(col.Data()) {
				match.Payload[col.Name()] = col.Data()[i]
			}
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// Delete removes entries by chunk id.
func (m *MilvusIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := m.client.Delete(ctx,
		milvusclient.NewDeleteOption(m.collection).WithStringIDs("id", ids)); err != nil {
		return fmt.Errorf("delete from milvus: %w", err)
	}
	return nil
}

// Close closes the Milvus connection.
func (m *MilvusIndex) Close(ctx context.Context) error {
	return m.client.Close(ctx)
}

// filterExpr renders an exact-match filter as a Milvus boolean expression.
func filterExpr(filter Filter) string {
	var parts []string
	for k, v := range filter {
		if v == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s == %q", k, strings.ReplaceAll(v, `"`, ``)))
	}
	return strings.Join(parts, " && ")
}
