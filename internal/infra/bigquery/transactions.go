package bigquery

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/openfinance/internal/domain"
)

// TransactionRow is one row of <dataset>.transactions.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	Description  string   `bigquery:"description"`    // REQUIRED STRING
	Amount       *big.Rat `bigquery:"amount"`         // REQUIRED NUMERIC
	IsCreditCard bool     `bigquery:"is_credit_card"` // REQUIRED BOOL

	Category bigquery.NullString `bigquery:"category"` // NULLABLE
	Tags     []string            `bigquery:"tags"`     // REPEATED STRING

	LocationLatitude  bigquery.NullFloat64 `bigquery:"location_latitude"`  // NULLABLE
	LocationLongitude bigquery.NullFloat64 `bigquery:"location_longitude"` // NULLABLE
	LocationAddress   bigquery.NullString  `bigquery:"location_address"`   // NULLABLE

	MonthYear string    `bigquery:"month_year"` // REQUIRED STRING, YYYY-MM
	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED TIMESTAMP

	MirrorRef bigquery.NullString `bigquery:"mirror_ref"` // NULLABLE
}

// transactionsSchema mirrors TransactionRow.
var transactionsSchema = bigquery.Schema{
	{Name: "transaction_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "description", Type: bigquery.StringFieldType, Required: true},
	{Name: "amount", Type: bigquery.NumericFieldType, Required: true},
	{Name: "is_credit_card", Type: bigquery.BooleanFieldType, Required: true},
	{Name: "category", Type: bigquery.StringFieldType},
	{Name: "tags", Type: bigquery.StringFieldType, Repeated: true},
	{Name: "location_latitude", Type: bigquery.FloatFieldType},
	{Name: "location_longitude", Type: bigquery.FloatFieldType},
	{Name: "location_address", Type: bigquery.StringFieldType},
	{Name: "month_year", Type: bigquery.StringFieldType, Required: true},
	{Name: "created_ts", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "mirror_ref", Type: bigquery.StringFieldType},
}

// NewTransactionRow converts a transaction into its row form.
func NewTransactionRow(tx domain.Transaction) *TransactionRow {
	row := &TransactionRow{
		TransactionID: tx.ID,
		Description:   tx.Description,
		Amount:        amountToNumeric(tx.Amount),
		IsCreditCard:  tx.IsCreditCard,
		Category:      nullString(tx.Category),
		Tags:          tx.Tags,
		MonthYear:     tx.MonthYear,
		CreatedTS:     tx.CreatedAt,
		MirrorRef:     nullString(tx.MirrorRef),
	}
	row.LocationLatitude, row.LocationLongitude, row.LocationAddress = locationColumns(tx.Location)
	return row
}

// Transaction converts the row back into the canonical record.
// BigQuery has no NULL arrays, so an empty tag list reads back as absent.
func (r *TransactionRow) Transaction() domain.Transaction {
	tx := domain.Transaction{
		ID:           r.TransactionID,
		Description:  r.Description,
		IsCreditCard: r.IsCreditCard,
		Category:     r.Category.StringVal,
		MonthYear:    r.MonthYear,
		CreatedAt:    r.CreatedTS.UTC(),
		MirrorRef:    r.MirrorRef.StringVal,
	}
	if r.Amount != nil {
		tx.Amount, _ = r.Amount.Float64()
	}
	if len(r.Tags) > 0 {
		tx.Tags = append([]string(nil), r.Tags...)
	}
	if r.LocationLatitude.Valid && r.LocationLongitude.Valid {
		tx.Location = &domain.Location{
			Latitude:  r.LocationLatitude.Float64,
			Longitude: r.LocationLongitude.Float64,
			Address:   r.LocationAddress.StringVal,
		}
	}
	return tx
}

// amountToNumeric keeps the decimal digits the client sent, rather than the
// binary expansion of the float.
func amountToNumeric(amount float64) *big.Rat {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(amount, 'f', -1, 64))
	if !ok {
		return new(big.Rat).SetFloat64(amount)
	}
	return r
}

func locationColumns(loc *domain.Location) (lat, lon bigquery.NullFloat64, address bigquery.NullString) {
	if loc == nil {
		return
	}
	lat = bigquery.NullFloat64{Float64: loc.Latitude, Valid: true}
	lon = bigquery.NullFloat64{Float64: loc.Longitude, Valid: true}
	address = nullString(loc.Address)
	return
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func tableName(projectID, datasetID string) string {
	return fmt.Sprintf("`%s.%s.%s`", projectID, datasetID, transactionsTable)
}
