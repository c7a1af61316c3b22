package operations

import (
	"encoding/json"
	"errors"
	"testing"
)

const layoutPayload = `{
	"modelId": "prebuilt-layout",
	"content": "Quarterly report",
	"pages": [
		{"pageNumber": 2, "width": 8.5, "height": 11, "unit": "inch",
		 "words": [{"content":"a"},{"content":"b"},{"content":"c"}],
		 "lines": [{"content":"a b c"}]},
		{"pageNumber": 1, "width": 8.5, "height": 11, "unit": "inch",
		 "words": [{"content":"x"}],
		 "lines": [{"content":"x"}]}
	],
	"tables": [
		{"rowCount": 3, "columnCount": 2, "cells": [
			{"rowIndex":0,"columnIndex":0,"content":"h1"},
			{"rowIndex":0,"columnIndex":1,"content":"h2"},
			{"rowIndex":1,"columnIndex":0,"content":"a"},
			{"rowIndex":1,"columnIndex":1,"content":"b"},
			{"rowIndex":2,"columnIndex":0,"content":"c","rowSpan":1,"columnSpan":2},
			{"rowIndex":2,"columnIndex":1,"content":""}
		]}
	]
}`

func TestNormalizeLayout(t *testing.T) {
	result, err := Normalize(ModelLayout, json.RawMessage(layoutPayload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if result.Content != "Quarterly report" {
		t.Fatalf("content = %q", result.Content)
	}
	if len(result.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(result.Pages))
	}
	// Pages come back ordered by page number regardless of payload order.
	if result.Pages[0].Number != 1 || result.Pages[1].Number != 2 {
		t.Fatalf("pages out of order: %+v", result.Pages)
	}
	if result.Pages[1].WordCount != 3 || result.Pages[1].LineCount != 1 {
		t.Fatalf("page 2 counts: %+v", result.Pages[1])
	}

	if len(result.Tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(result.Tables))
	}
	table := result.Tables[0]
	if table.RowCount != 3 || table.ColumnCount != 2 {
		t.Fatalf("table shape: %+v", table)
	}
	if len(table.Cells) != 6 {
		t.Fatalf("cells = %d, want 6", len(table.Cells))
	}
	for _, cell := range table.Cells {
		if cell.RowSpan < 1 || cell.ColumnSpan < 1 {
			t.Fatalf("spans must default to 1: %+v", cell)
		}
	}
	if table.Cells[4].ColumnSpan != 2 {
		t.Fatalf("explicit span lost: %+v", table.Cells[4])
	}
}

func TestNormalizeReadDropsTables(t *testing.T) {
	result, err := Normalize(ModelRead, json.RawMessage(layoutPayload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(result.Tables) != 0 {
		t.Fatalf("read model must not report tables, got %d", len(result.Tables))
	}
	if len(result.KeyValuePairs) != 0 {
		t.Fatalf("read model must not report fields")
	}
	if result.Content == "" || len(result.Pages) != 2 {
		t.Fatalf("read model keeps content and pages: %+v", result)
	}
}

func TestNormalizeInvoiceKeepsSchemaFieldsOnly(t *testing.T) {
	payload := `{
		"modelId": "prebuilt-invoice",
		"content": "INVOICE #42",
		"pages": [{"pageNumber":1,"width":8.5,"height":11,"unit":"inch","words":[],"lines":[]}],
		"documents": [{
			"docType": "invoice",
			"fields": {
				"InvoiceId": {"type":"string","valueString":"42","confidence":0.98},
				"InvoiceTotal": {"type":"currency","content":"$120.00","confidence":0.95},
				"VendorName": {"type":"string","content":"Acme Corp"},
				"SomethingNovel": {"type":"string","content":"ignored"},
				"EmptyField": {"type":"string"}
			}
		}]
	}`

	result, err := Normalize(ModelInvoice, json.RawMessage(payload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if got := result.KeyValuePairs["InvoiceId"]; got.Value != "42" || got.Confidence != 0.98 {
		t.Fatalf("InvoiceId = %+v", got)
	}
	if got := result.KeyValuePairs["InvoiceTotal"]; got.Value != "$120.00" {
		t.Fatalf("InvoiceTotal = %+v", got)
	}
	// Missing confidence defaults to full confidence.
	if got := result.KeyValuePairs["VendorName"]; got.Confidence != 1.0 {
		t.Fatalf("VendorName confidence = %v", got.Confidence)
	}
	if _, ok := result.KeyValuePairs["SomethingNovel"]; ok {
		t.Fatalf("unknown field must be dropped, not surfaced")
	}
	if _, ok := result.KeyValuePairs["EmptyField"]; ok {
		t.Fatalf("valueless field must be dropped")
	}
	if len(result.Tables) != 0 {
		t.Fatalf("invoice model does not report layout tables")
	}
}

func TestNormalizeCustomIsLenient(t *testing.T) {
	payload := `{
		"modelId": "my-trained-model",
		"content": "whatever",
		"pages": [{"pageNumber":1,"width":1,"height":1,"unit":"inch","words":[],"lines":[]}],
		"keyValuePairs": [
			{"key":{"content":"PolicyNumber"},"value":{"content":"P-123"},"confidence":0.8},
			{"key":{"content":""},"value":{"content":"orphan"}}
		],
		"documents": [{
			"docType": "custom",
			"fields": {"AnythingGoes": {"type":"string","content":"yes","confidence":0.7}}
		}]
	}`
	custom, err := CustomModel("my-trained-model")
	if err != nil {
		t.Fatalf("CustomModel: %v", err)
	}

	result, err := Normalize(custom, json.RawMessage(payload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got := result.KeyValuePairs["PolicyNumber"]; got.Value != "P-123" || got.Confidence != 0.8 {
		t.Fatalf("PolicyNumber = %+v", got)
	}
	if got := result.KeyValuePairs["AnythingGoes"]; got.Value != "yes" {
		t.Fatalf("AnythingGoes = %+v", got)
	}
	if _, ok := result.KeyValuePairs[""]; ok {
		t.Fatalf("keyless pair must be dropped")
	}
}

func TestNormalizeMalformedPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"content": `,
		"wrong shape":      `[1,2,3]`,
		"no structure":     `{"modelId":"prebuilt-read"}`,
		"empty object":     `{}`,
		"null pages only":  `{"pages": null}`,
	}
	for name, payload := range cases {
		if _, err := Normalize(ModelRead, json.RawMessage(payload)); !errors.Is(err, ErrMalformedResult) {
			t.Fatalf("%s: expected ErrMalformedResult, got %v", name, err)
		}
	}
}

func TestNormalizeFillsModelIDWhenAbsent(t *testing.T) {
	payload := `{"content":"x","pages":[{"pageNumber":1,"width":1,"height":1,"unit":"inch","words":[],"lines":[]}]}`
	result, err := Normalize(ModelReceipt, json.RawMessage(payload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if result.ModelID != "prebuilt-receipt" {
		t.Fatalf("ModelID = %q", result.ModelID)
	}
}
