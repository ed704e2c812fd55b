// Package bigquery stores transactions in a BigQuery table using DML, so
// rows are immediately visible to UPDATE and DELETE.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/openfinance/internal/domain"
	"github.com/dvloznov/openfinance/internal/logger"
	"github.com/dvloznov/openfinance/internal/store"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const transactionsTable = "transactions"

const selectColumns = `
			transaction_id,
			description,
			amount,
			is_credit_card,
			category,
			tags,
			location_latitude,
			location_longitude,
			location_address,
			month_year,
			created_ts,
			mirror_ref`

// Store implements store.Store. It holds a shared BigQuery client to avoid
// creating a new connection for each operation.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	now       func() time.Time
}

// NewStore creates a BigQuery client for projectID and wraps it.
func NewStore(ctx context.Context, projectID, datasetID string) (*Store, error) {
	if projectID == "" || datasetID == "" {
		return nil, fmt.Errorf("NewStore: project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return NewStoreWithClient(client, datasetID), nil
}

// NewStoreWithClient wraps an existing client. The store takes ownership and
// closes it in Close.
func NewStoreWithClient(client *bigquery.Client, datasetID string) *Store {
	return &Store{
		client:    client,
		projectID: client.Project(),
		datasetID: datasetID,
		now:       time.Now,
	}
}

// EnsureSchema creates the transactions table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	table := s.client.DatasetInProject(s.projectID, s.datasetID).Table(transactionsTable)
	err := table.Create(ctx, &bigquery.TableMetadata{Schema: transactionsSchema})

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		log := logger.FromContext(ctx)
		log.Debug().Str("table", transactionsTable).Msg("table already exists")
		return nil
	}
	if err != nil {
		return &domain.StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, draft domain.Draft) (domain.Transaction, error) {
	// BigQuery TIMESTAMP has microsecond precision.
	tx := domain.NewTransaction(draft, uuid.NewString(), s.now().UTC().Truncate(time.Microsecond))

	query, params := buildInsert(s.table(), NewTransactionRow(tx))
	if err := s.runDML(ctx, query, params); err != nil {
		return domain.Transaction{}, &domain.StorageError{Op: "create", Err: err}
	}
	return tx, nil
}

// FindMany implements store.Store.
func (s *Store) FindMany(ctx context.Context, filters domain.Filters) ([]domain.Transaction, error) {
	query, params := buildFindMany(s.table(), filters)

	rows, err := s.read(ctx, query, params)
	if err != nil {
		return nil, &domain.StorageError{Op: "find many", Err: err}
	}

	result := make([]domain.Transaction, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.Transaction())
	}
	return result, nil
}

// FindByID implements store.Store.
func (s *Store) FindByID(ctx context.Context, id string) (domain.Transaction, bool, error) {
	query := `SELECT` + selectColumns + `
		FROM ` + s.table() + `
		WHERE transaction_id = @transaction_id
		LIMIT 1`

	rows, err := s.read(ctx, query, []bigquery.QueryParameter{{Name: "transaction_id", Value: id}})
	if err != nil {
		return domain.Transaction{}, false, &domain.StorageError{Op: "find by id", Err: err}
	}
	if len(rows) == 0 {
		return domain.Transaction{}, false, nil
	}
	return rows[0].Transaction(), true, nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, id string, patch domain.Patch) (domain.Transaction, error) {
	query, params := buildUpdate(s.table(), id, patch)
	if query != "" {
		if err := s.runDML(ctx, query, params); err != nil {
			return domain.Transaction{}, &domain.StorageError{Op: "update", Err: err}
		}
	}

	tx, found, err := s.FindByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !found {
		return domain.Transaction{}, &domain.NotFoundError{ID: id}
	}
	return tx, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM ` + s.table() + ` WHERE transaction_id = @transaction_id`
	if err := s.runDML(ctx, query, []bigquery.QueryParameter{{Name: "transaction_id", Value: id}}); err != nil {
		return &domain.StorageError{Op: "delete", Err: err}
	}
	return nil
}

// Ping implements store.Store by reading the table metadata.
func (s *Store) Ping(ctx context.Context) error {
	table := s.client.DatasetInProject(s.projectID, s.datasetID).Table(transactionsTable)
	if _, err := table.Metadata(ctx); err != nil {
		return &domain.StorageError{Op: "ping", Err: err}
	}
	return nil
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Store) table() string {
	return tableName(s.projectID, s.datasetID)
}

func (s *Store) read(ctx context.Context, query string, params []bigquery.QueryParameter) ([]*TransactionRow, error) {
	q := s.client.Query(query)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

func (s *Store) runDML(ctx context.Context, query string, params []bigquery.QueryParameter) error {
	q := s.client.Query(query)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

func buildInsert(table string, row *TransactionRow) (string, []bigquery.QueryParameter) {
	query := `
		INSERT ` + table + ` (
			transaction_id,
			description,
			amount,
			is_credit_card,
			category,
			tags,
			location_latitude,
			location_longitude,
			location_address,
			month_year,
			created_ts,
			mirror_ref
		)
		VALUES (
			@transaction_id,
			@description,
			@amount,
			@is_credit_card,
			@category,
			@tags,
			@location_latitude,
			@location_longitude,
			@location_address,
			@month_year,
			@created_ts,
			@mirror_ref
		)`

	tags := row.Tags
	if tags == nil {
		tags = []string{}
	}

	params := []bigquery.QueryParameter{
		{Name: "transaction_id", Value: row.TransactionID},
		{Name: "description", Value: row.Description},
		{Name: "amount", Value: row.Amount},
		{Name: "is_credit_card", Value: row.IsCreditCard},
		{Name: "category", Value: row.Category},
		{Name: "tags", Value: tags},
		{Name: "location_latitude", Value: row.LocationLatitude},
		{Name: "location_longitude", Value: row.LocationLongitude},
		{Name: "location_address", Value: row.LocationAddress},
		{Name: "month_year", Value: row.MonthYear},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "mirror_ref", Value: row.MirrorRef},
	}
	return query, params
}

func buildFindMany(table string, filters domain.Filters) (string, []bigquery.QueryParameter) {
	var (
		conds  []string
		params []bigquery.QueryParameter
	)
	if filters.MonthYear != "" {
		conds = append(conds, "month_year = @month_year")
		params = append(params, bigquery.QueryParameter{Name: "month_year", Value: filters.MonthYear})
	}
	if filters.Category != "" {
		conds = append(conds, "category = @category")
		params = append(params, bigquery.QueryParameter{Name: "category", Value: filters.Category})
	}
	if filters.IsCreditCard != nil {
		conds = append(conds, "is_credit_card = @is_credit_card")
		params = append(params, bigquery.QueryParameter{Name: "is_credit_card", Value: *filters.IsCreditCard})
	}

	var b strings.Builder
	b.WriteString("SELECT" + selectColumns + "\n\t\tFROM " + table)
	if len(conds) > 0 {
		b.WriteString("\n\t\tWHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString("\n\t\tORDER BY created_ts DESC, transaction_id DESC")

	limit, offset := filters.Window()
	if limit > 0 {
		b.WriteString("\n\t\tLIMIT @limit")
		params = append(params, bigquery.QueryParameter{Name: "limit", Value: int64(limit)})
	}
	if offset > 0 {
		b.WriteString(" OFFSET @offset")
		params = append(params, bigquery.QueryParameter{Name: "offset", Value: int64(offset)})
	}
	return b.String(), params
}

// buildUpdate returns an empty query when the patch changes nothing.
func buildUpdate(table, id string, patch domain.Patch) (string, []bigquery.QueryParameter) {
	var (
		sets   []string
		params []bigquery.QueryParameter
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = @"+column)
		params = append(params, bigquery.QueryParameter{Name: column, Value: value})
	}

	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Amount != nil {
		set("amount", amountToNumeric(*patch.Amount))
	}
	if patch.IsCreditCard != nil {
		set("is_credit_card", *patch.IsCreditCard)
	}
	if patch.Category != nil {
		set("category", nullString(*patch.Category))
	}
	if patch.Tags != nil {
		set("tags", patch.Tags)
	}
	if patch.Location != nil {
		lat, lon, address := locationColumns(patch.Location)
		set("location_latitude", lat)
		set("location_longitude", lon)
		set("location_address", address)
	}
	if patch.MirrorRef != nil {
		set("mirror_ref", nullString(*patch.MirrorRef))
	}

	if len(sets) == 0 {
		return "", nil
	}
	params = append(params, bigquery.QueryParameter{Name: "transaction_id", Value: id})
	query := `UPDATE ` + table + `
		SET ` + strings.Join(sets, ", ") + `
		WHERE transaction_id = @transaction_id`
	return query, params
}

// Ensure Store implements store.Store interface.
var _ store.Store = (*Store)(nil)
