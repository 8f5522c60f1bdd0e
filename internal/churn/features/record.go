package features

import (
	"fmt"
	"strconv"
)

// Source column names of a raw customer record, as they appear in the
// survey export.
const (
	ColGender           = "gender"
	ColSeniorCitizen    = "SeniorCitizen"
	ColPartner          = "Partner"
	ColDependents       = "Dependents"
	ColTenure           = "tenure"
	ColPhoneService     = "PhoneService"
	ColPaperlessBilling = "PaperlessBilling"
	ColMonthlyCharges   = "MonthlyCharges"
	ColTotalCharges     = "TotalCharges"
	ColMultipleLines    = "MultipleLines"
	ColInternetService  = "InternetService"
	ColPaymentMethod    = "PaymentMethod"
)

// RawColumns lists every column a raw record must carry.
var RawColumns = []string{
	ColGender, ColSeniorCitizen, ColPartner, ColDependents, ColTenure,
	ColPhoneService, ColPaperlessBilling, ColMonthlyCharges, ColTotalCharges,
	ColMultipleLines, ColInternetService, ColPaymentMethod,
}

// RawRecord is one customer keyed by source column name. Values are kept as
// text because exports routinely carry blanks or "N/A" in numeric columns.
type RawRecord map[string]string

// EncodedRow is one customer already carrying the 19 feature columns, keyed by
// training column name or API key.
type EncodedRow map[string]string

// RecordFromValues builds a RawRecord from decoded JSON, accepting both the
// source column names and their camelCase API names. A present but blank
// value is kept so the encoder coerces it; only absent or null fields are
// missing.
func RecordFromValues(values map[string]interface{}) RawRecord {
	rec := RawRecord{}
	for k, v := range values {
		if v == nil {
			continue
		}
		col := k
		if alias, ok := rawAliases[k]; ok {
			col = alias
		}
		rec[col] = textValue(v)
	}
	return rec
}

// RowFromValues builds an EncodedRow from decoded JSON.
func RowFromValues(values map[string]interface{}) EncodedRow {
	row := EncodedRow{}
	for k, v := range values {
		if v == nil {
			continue
		}
		row[k] = textValue(v)
	}
	return row
}

var rawAliases = map[string]string{
	"seniorCitizen":    ColSeniorCitizen,
	"partner":          ColPartner,
	"dependents":       ColDependents,
	"phoneService":     ColPhoneService,
	"paperlessBilling": ColPaperlessBilling,
	"monthlyCharges":   ColMonthlyCharges,
	"totalCharges":     ColTotalCharges,
	"multipleLines":    ColMultipleLines,
	"internetService":  ColInternetService,
	"paymentMethod":    ColPaymentMethod,
}

func textValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(t)
	}
}
