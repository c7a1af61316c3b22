package operations

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Normalize converts a remote result payload into the domain AnalysisResult
// for the given model. It is a pure transformation: no I/O, no state.
//
// Sparse payloads are fine — missing tables or fields are simply absent from
// the output. It fails only when the payload lacks the minimum structural
// markers of any analysis result (neither content nor pages present).
func Normalize(model ModelType, raw json.RawMessage) (*AnalysisResult, error) {
	var payload rawResult
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	if payload.Content == nil && len(payload.Pages) == 0 {
		return nil, fmt.Errorf("%w: payload has neither content nor pages", ErrMalformedResult)
	}

	out := &AnalysisResult{
		ModelID:       payload.ModelID,
		Pages:         convertPages(payload.Pages),
		Tables:        []Table{},
		KeyValuePairs: map[string]Field{},
	}
	if out.ModelID == "" {
		out.ModelID = model.RemoteID()
	}
	if payload.Content != nil {
		out.Content = *payload.Content
	}

	switch {
	case model.Kind() == ModelKindRead:
		// text and page stats only
	case model.Kind() == ModelKindLayout:
		out.Tables = convertTables(payload.Tables)
	case model.IsSchemaModel():
		out.KeyValuePairs = schemaFields(model, payload.Documents)
	case model.IsCustom():
		// Schema unknown ahead of time: take whatever is structurally present.
		out.Tables = convertTables(payload.Tables)
		out.KeyValuePairs = customFields(payload)
	}
	return out, nil
}

func convertPages(pages []rawPage) []Page {
	out := make([]Page, 0, len(pages))
	for _, p := range pages {
		out = append(out, Page{
			Number:    p.PageNumber,
			Width:     p.Width,
			Height:    p.Height,
			Unit:      p.Unit,
			WordCount: len(p.Words),
			LineCount: len(p.Lines),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func convertTables(tables []rawTable) []Table {
	out := make([]Table, 0, len(tables))
	for _, t := range tables {
		cells := make([]Cell, 0, len(t.Cells))
		for _, c := range t.Cells {
			cell := Cell{
				Row:        c.RowIndex,
				Column:     c.ColumnIndex,
				Text:       c.Content,
				RowSpan:    1,
				ColumnSpan: 1,
			}
			if c.RowSpan != nil && *c.RowSpan > 0 {
				cell.RowSpan = *c.RowSpan
			}
			if c.ColumnSpan != nil && *c.ColumnSpan > 0 {
				cell.ColumnSpan = *c.ColumnSpan
			}
			cells = append(cells, cell)
		}
		out = append(out, Table{
			RowCount:    t.RowCount,
			ColumnCount: t.ColumnCount,
			Cells:       cells,
		})
	}
	return out
}

// schemaFields keeps only the fields belonging to the model's known schema;
// anything else the remote added is dropped, never an error.
func schemaFields(model ModelType, docs []rawDocument) map[string]Field {
	known := prebuiltFieldSets[model.Kind()]
	out := make(map[string]Field)
	for _, doc := range docs {
		for name, field := range doc.Fields {
			if _, ok := known[name]; !ok {
				continue
			}
			value, ok := field.value()
			if !ok {
				continue
			}
			out[name] = Field{Value: value, Confidence: field.confidence()}
		}
	}
	return out
}

// customFields is the lenient path: generic key-value pairs and all document
// fields, whatever their names.
func customFields(payload rawResult) map[string]Field {
	out := make(map[string]Field)
	for _, kvp := range payload.KeyValuePairs {
		if kvp.Key.Content == "" {
			continue
		}
		conf := 1.0
		if kvp.Confidence != nil {
			conf = *kvp.Confidence
		}
		out[kvp.Key.Content] = Field{Value: kvp.Value.Content, Confidence: conf}
	}
	for _, doc := range payload.Documents {
		for name, field := range doc.Fields {
			value, ok := field.value()
			if !ok {
				continue
			}
			out[name] = Field{Value: value, Confidence: field.confidence()}
		}
	}
	return out
}

// prebuiltFieldSets lists the schema-specific field names per model, matching
// the remote service's prebuilt schemas.
var prebuiltFieldSets = map[string]map[string]struct{}{
	ModelKindInvoice: fieldSet(
		"VendorName", "VendorAddress", "CustomerName", "CustomerAddress",
		"InvoiceId", "InvoiceDate", "DueDate", "PurchaseOrder",
		"SubTotal", "TotalTax", "InvoiceTotal", "AmountDue",
		"BillingAddress", "ShippingAddress", "PaymentTerm",
	),
	ModelKindReceipt: fieldSet(
		"MerchantName", "MerchantAddress", "MerchantPhoneNumber",
		"TransactionDate", "TransactionTime",
		"Subtotal", "TotalTax", "Tip", "Total", "ReceiptType",
	),
	ModelKindIDDocument: fieldSet(
		"FirstName", "LastName", "DocumentNumber",
		"DateOfBirth", "DateOfExpiration", "DateOfIssue",
		"Sex", "Address", "CountryRegion", "Region", "Nationality",
	),
	ModelKindBusinessCard: fieldSet(
		"ContactNames", "CompanyNames", "JobTitles", "Departments",
		"Emails", "Websites", "Addresses",
		"MobilePhones", "WorkPhones", "Faxes", "OtherPhones",
	),
	ModelKindW2: fieldSet(
		"TaxYear", "Employee", "Employer",
		"WagesTipsAndOtherCompensation", "FederalIncomeTaxWithheld",
		"SocialSecurityWages", "SocialSecurityTaxWithheld",
		"MedicareWagesAndTips", "MedicareTaxWithheld",
		"StateTaxInfos", "LocalTaxInfos",
	),
	ModelKindHealthInsuranceCard: fieldSet(
		"Insurer", "Member", "IdNumber", "GroupNumber",
		"PrescriptionInfo", "Pbm", "EffectiveDate", "Copays", "Payer", "Plan",
	),
}

func fieldSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// Raw payload DTOs mirroring the remote analyzeResult document.

type rawResult struct {
	ModelID       string        `json:"modelId"`
	Content       *string       `json:"content"`
	Pages         []rawPage     `json:"pages"`
	Tables        []rawTable    `json:"tables"`
	KeyValuePairs []rawKVP      `json:"keyValuePairs"`
	Documents     []rawDocument `json:"documents"`
}

type rawPage struct {
	PageNumber int       `json:"pageNumber"`
	Width      float64   `json:"width"`
	Height     float64   `json:"height"`
	Unit       string    `json:"unit"`
	Words      []rawSpan `json:"words"`
	Lines      []rawSpan `json:"lines"`
}

// rawSpan covers words and lines; only their presence is counted.
type rawSpan struct {
	Content string `json:"content"`
}

type rawTable struct {
	RowCount    int            `json:"rowCount"`
	ColumnCount int            `json:"columnCount"`
	Cells       []rawTableCell `json:"cells"`
}

type rawTableCell struct {
	RowIndex    int    `json:"rowIndex"`
	ColumnIndex int    `json:"columnIndex"`
	RowSpan     *int   `json:"rowSpan"`
	ColumnSpan  *int   `json:"columnSpan"`
	Content     string `json:"content"`
}

type rawKVP struct {
	Key        rawKVPElement `json:"key"`
	Value      rawKVPElement `json:"value"`
	Confidence *float64      `json:"confidence"`
}

type rawKVPElement struct {
	Content string `json:"content"`
}

type rawDocument struct {
	DocType    string              `json:"docType"`
	Fields     map[string]rawField `json:"fields"`
	Confidence *float64            `json:"confidence"`
}

type rawField struct {
	Type        string   `json:"type"`
	Content     *string  `json:"content"`
	ValueString *string  `json:"valueString"`
	Confidence  *float64 `json:"confidence"`
}

func (f rawField) value() (string, bool) {
	if f.Content != nil && *f.Content != "" {
		return *f.Content, true
	}
	if f.ValueString != nil && *f.ValueString != "" {
		return *f.ValueString, true
	}
	return "", false
}

func (f rawField) confidence() float64 {
	if f.Confidence != nil {
		return *f.Confidence
	}
	return 1.0
}
