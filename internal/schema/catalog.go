package schema

// Catalog returns the destination tables this deployment ingests. One entry
// per sheet the watched workbooks are allowed to carry; any other sheet is a
// schema mismatch. Source headers are the literal first-row cell text of the
// business templates.
func Catalog() []TableSpec {
	return []TableSpec{
		{
			SheetName: "新規to業務管理",
			TableName: "contract_creation",
			Columns: []ColumnSpec{
				{DestColumn: "id", SQLType: "bigint", Identity: true, Key: true},
				{SourceHeader: "契約ID", DestColumn: "contract_id", SQLType: "varchar(20)", Required: true, Indexed: true, MaxLength: 20},
				{SourceHeader: "物件No", DestColumn: "property_no", SQLType: "bigint", Required: true, Indexed: true},
				{SourceHeader: "出力日時", DestColumn: "reported_at", SQLType: "timestamp", Required: true},
				{SourceHeader: "契約種別", DestColumn: "contract_type", SQLType: "varchar(40)", MaxLength: 40},
				{SourceHeader: "成約金額", DestColumn: "contract_amount", SQLType: "numeric(14,2)"},
				{SourceHeader: "有効フラグ", DestColumn: "is_active", SQLType: "boolean"},
			},
		},
		{
			SheetName: "解約to業務管理",
			TableName: "contract_termination",
			Columns: []ColumnSpec{
				{DestColumn: "id", SQLType: "bigint", Identity: true, Key: true},
				{SourceHeader: "契約ID", DestColumn: "contract_id", SQLType: "varchar(20)", Required: true, Indexed: true, MaxLength: 20},
				{SourceHeader: "解約日", DestColumn: "terminated_on", SQLType: "date", Required: true},
				{SourceHeader: "解約理由", DestColumn: "reason", SQLType: "text"},
				{SourceHeader: "違約金", DestColumn: "penalty_amount", SQLType: "numeric(12,2)"},
			},
		},
		{
			SheetName: "物件マスタ",
			TableName: "property_master",
			Columns: []ColumnSpec{
				{DestColumn: "id", SQLType: "bigint", Identity: true, Key: true},
				{SourceHeader: "物件No", DestColumn: "property_no", SQLType: "bigint", Required: true, Indexed: true},
				{SourceHeader: "物件名", DestColumn: "property_name", SQLType: "varchar(120)", Required: true, MaxLength: 120},
				{SourceHeader: "所在地", DestColumn: "address", SQLType: "text"},
				{SourceHeader: "築年数", DestColumn: "building_age", SQLType: "integer"},
				{SourceHeader: "賃料", DestColumn: "monthly_rent", SQLType: "numeric(12,0)"},
				{SourceHeader: "管理対象", DestColumn: "managed", SQLType: "boolean"},
			},
		},
		{
			SheetName: "請求明細",
			TableName: "billing_detail",
			Columns: []ColumnSpec{
				{DestColumn: "id", SQLType: "bigint", Identity: true, Key: true},
				{SourceHeader: "請求ID", DestColumn: "invoice_id", SQLType: "varchar(24)", Required: true, Indexed: true, MaxLength: 24},
				{SourceHeader: "契約ID", DestColumn: "contract_id", SQLType: "varchar(20)", Required: true, Indexed: true, MaxLength: 20},
				{SourceHeader: "請求日", DestColumn: "billed_on", SQLType: "date", Required: true},
				{SourceHeader: "金額", DestColumn: "amount", SQLType: "numeric(14,2)", Required: true},
				{SourceHeader: "摘要", DestColumn: "memo", SQLType: "text"},
			},
		},
	}
}
