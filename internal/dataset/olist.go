package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"
)

type sourceFile struct {
	View     string
	File     string
	Required bool
}

var olistSources = []sourceFile{
	{View: "orders", File: "olist_orders_dataset.csv", Required: true},
	{View: "customers", File: "olist_customers_dataset.csv"},
	{View: "items", File: "olist_order_items_dataset.csv"},
	{View: "products", File: "olist_products_dataset.csv"},
	{View: "payments", File: "olist_order_payments_dataset.csv"},
	{View: "reviews", File: "olist_order_reviews_dataset.csv"},
	{View: "sellers", File: "olist_sellers_dataset.csv"},
	{View: "geolocation", File: "olist_geolocation_dataset.csv"},
	{View: "category_translation", File: "product_category_name_translation.csv"},
}

// Column order of the published relation. Columns the sources do not
// provide are dropped, except the derived and dimension columns which are
// always present.
var olistColumns = []string{
	"order_id", "order_status", "order_year", "order_month", "order_purchase_timestamp", "shipping_limit_date",
	"customer_id", "customer_unique_id", "customer_city", "customer_state", "customer_zip_code_prefix",
	"customer_lat", "customer_lng", "customer_geo_city", "customer_geo_state",
	"seller_id", "seller_city", "seller_state", "seller_zip_code_prefix",
	"seller_lat", "seller_lng", "seller_geo_city", "seller_geo_state",
	"order_item_id", "product_id", "product_category_name", "product_category_name_english",
	"product_name_lenght", "product_description_lenght", "product_photos_qty",
	"product_weight_g", "product_length_cm", "product_height_cm", "product_width_cm",
	"price", "freight_value", "payment_type", "payment_installments", "payment_value", "total_order_value",
	"review_id", "review_score", "review_creation_date", "review_answer_timestamp",
	"review_comment_title", "review_comment_message",
	"delivery_days",
}

var timestampColumns = map[string]bool{
	"order_purchase_timestamp":      true,
	"order_approved_at":             true,
	"order_delivered_carrier_date":  true,
	"order_delivered_customer_date": true,
	"order_estimated_delivery_date": true,
	"shipping_limit_date":           true,
	"review_creation_date":          true,
	"review_answer_timestamp":       true,
}

var moneyColumns = map[string]bool{
	"price":         true,
	"freight_value": true,
	"payment_value": true,
}

var dimensionColumns = map[string]bool{
	"product_weight_g":  true,
	"product_length_cm": true,
	"product_height_cm": true,
	"product_width_cm":  true,
}

type BuildSummary struct {
	OutputPath   string
	Rows         int64
	Columns      int
	MissingFiles []string
}

// BuildOlist merges the Olist CSV export in csvDir into one denormalized
// relation and writes it to outPath as Parquet. Only the orders file is
// required; joins against missing files are skipped.
func BuildOlist(ctx context.Context, csvDir, outPath string) (BuildSummary, error) {
	if strings.TrimSpace(csvDir) == "" {
		return BuildSummary{}, fmt.Errorf("csv directory is required")
	}
	if strings.TrimSpace(outPath) == "" {
		return BuildSummary{}, fmt.Errorf("output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return BuildSummary{}, fmt.Errorf("create output dir: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return BuildSummary{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()
	// Views and tables below live in one in-memory database per connection.
	db.SetMaxOpenConns(1)

	summary := BuildSummary{OutputPath: outPath}
	present := map[string]bool{}
	for _, source := range olistSources {
		path := filepath.Join(csvDir, source.File)
		if _, err := os.Stat(path); err != nil {
			if source.Required {
				return BuildSummary{}, fmt.Errorf("required source %q: %w", source.File, err)
			}
			summary.MissingFiles = append(summary.MissingFiles, source.File)
			continue
		}
		viewSQL := fmt.Sprintf(`CREATE VIEW %s AS SELECT * FROM read_csv_auto(%s, header = true)`, quoteIdent(source.View), quoteString(path))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return BuildSummary{}, fmt.Errorf("register %s: %w", source.File, err)
		}
		present[source.View] = true
	}

	if _, err := db.ExecContext(ctx, mergeSQL(present)); err != nil {
		return BuildSummary{}, fmt.Errorf("merge sources: %w", err)
	}

	existing, err := tableColumns(ctx, db, "merged")
	if err != nil {
		return BuildSummary{}, err
	}
	selectList := projection(existing)

	copySQL := fmt.Sprintf(`COPY (SELECT %s FROM merged) TO %s (FORMAT PARQUET)`, strings.Join(selectList, ", "), quoteString(outPath))
	if _, err := db.ExecContext(ctx, copySQL); err != nil {
		return BuildSummary{}, fmt.Errorf("write parquet: %w", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM merged`).Scan(&summary.Rows); err != nil {
		return BuildSummary{}, fmt.Errorf("count merged rows: %w", err)
	}
	summary.Columns = len(selectList)
	return summary, nil
}

func mergeSQL(present map[string]bool) string {
	var ctes []string
	if present["geolocation"] {
		ctes = append(ctes, `geo AS (
	SELECT * FROM geolocation
	QUALIFY row_number() OVER (PARTITION BY geolocation_zip_code_prefix) = 1
)`)
	}

	customers := "customers"
	if present["customers"] && present["geolocation"] {
		ctes = append(ctes, geoJoinCTE("cust", "customers", "customer"))
		customers = "cust"
	}
	sellers := "sellers"
	if present["sellers"] && present["geolocation"] {
		ctes = append(ctes, geoJoinCTE("sell", "sellers", "seller"))
		sellers = "sell"
	}
	products := "products"
	if present["products"] && present["category_translation"] {
		ctes = append(ctes, `prod AS (
	SELECT p.*, t.product_category_name_english
	FROM products p
	LEFT JOIN category_translation t ON p.product_category_name = t.product_category_name
)`)
		products = "prod"
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE merged AS\n")
	if len(ctes) > 0 {
		b.WriteString("WITH ")
		b.WriteString(strings.Join(ctes, ",\n"))
		b.WriteString("\n")
	}
	b.WriteString("SELECT * FROM orders")
	if present["customers"] {
		fmt.Fprintf(&b, "\nLEFT JOIN %s USING (customer_id)", customers)
	}
	if present["items"] {
		b.WriteString("\nLEFT JOIN items USING (order_id)")
		if present["products"] {
			fmt.Fprintf(&b, "\nLEFT JOIN %s USING (product_id)", products)
		}
	}
	if present["payments"] {
		b.WriteString("\nLEFT JOIN payments USING (order_id)")
	}
	if present["reviews"] {
		b.WriteString("\nLEFT JOIN reviews USING (order_id)")
	}
	if present["items"] && present["sellers"] {
		fmt.Fprintf(&b, "\nLEFT JOIN %s USING (seller_id)", sellers)
	}
	return b.String()
}

func geoJoinCTE(name, source, prefix string) string {
	return fmt.Sprintf(`%[1]s AS (
	SELECT s.*,
		g.geolocation_lat AS %[3]s_lat,
		g.geolocation_lng AS %[3]s_lng,
		g.geolocation_city AS %[3]s_geo_city,
		g.geolocation_state AS %[3]s_geo_state
	FROM %[2]s s
	LEFT JOIN geo g ON s.%[3]s_zip_code_prefix = g.geolocation_zip_code_prefix
)`, name, source, prefix)
}

func projection(existing map[string]bool) []string {
	has := func(name string) bool { return existing[name] }
	ts := func(name string) string { return fmt.Sprintf("TRY_CAST(%s AS TIMESTAMP)", quoteIdent(name)) }
	money := func(name string) string {
		if !has(name) {
			return "NULL"
		}
		casted := fmt.Sprintf("TRY_CAST(%s AS DOUBLE)", quoteIdent(name))
		return fmt.Sprintf("COALESCE(%s, MEDIAN(%s) OVER ())", casted, casted)
	}

	list := make([]string, 0, len(olistColumns))
	for _, name := range olistColumns {
		var expr string
		switch {
		case name == "order_year" || name == "order_month":
			part := strings.TrimPrefix(name, "order_")
			if has("order_purchase_timestamp") {
				expr = fmt.Sprintf("CAST(%s(%s) AS BIGINT)", part, ts("order_purchase_timestamp"))
			} else {
				expr = "CAST(NULL AS BIGINT)"
			}
		case name == "delivery_days":
			if has("order_purchase_timestamp") && has("order_delivered_customer_date") {
				expr = fmt.Sprintf("CAST(floor((epoch(%s) - epoch(%s)) / 86400) AS BIGINT)", ts("order_delivered_customer_date"), ts("order_purchase_timestamp"))
			} else {
				expr = "CAST(NULL AS BIGINT)"
			}
		case name == "total_order_value":
			payment := fmt.Sprintf("COALESCE(%s, 0)", money("payment_value"))
			if has("price") && has("freight_value") {
				expr = fmt.Sprintf("CASE WHEN %[1]s > 0 THEN %[1]s ELSE COALESCE(%[2]s, 0) + COALESCE(%[3]s, 0) END", payment, money("price"), money("freight_value"))
			} else {
				expr = fmt.Sprintf("CAST(%s AS DOUBLE)", payment)
			}
		case dimensionColumns[name]:
			if has(name) {
				expr = fmt.Sprintf("TRY_CAST(%s AS DOUBLE)", quoteIdent(name))
			} else {
				expr = "CAST(NULL AS DOUBLE)"
			}
		case !has(name):
			continue
		case timestampColumns[name]:
			expr = ts(name)
		case moneyColumns[name]:
			expr = money(name)
		default:
			expr = quoteIdent(name)
		}
		list = append(list, fmt.Sprintf("%s AS %s", expr, quoteIdent(name)))
	}
	return list
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT column_name FROM information_schema.columns WHERE table_name = ?`, table)
	if err != nil {
		return nil, fmt.Errorf("list %s columns: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
