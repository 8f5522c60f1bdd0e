// Package features turns customer attributes into the fixed-order numeric
// vector the churn classifier was trained on.
//
// The slot order, the categorical mapping table and the derived formulas in
// this package are the only place that contract is written down. Every
// surface (workers, HTTP API, CSV batch) goes through Encode or
// EncodePreEncoded.
package features

// Size is the number of slots in a feature vector.
const Size = 19

// Vector is one encoded customer in canonical slot order.
type Vector [Size]float64

// Slice returns the vector as a fresh []float64, the shape scoring services expect.
func (v Vector) Slice() []float64 {
	out := make([]float64, Size)
	copy(out, v[:])
	return out
}

// Map returns the vector keyed by training column name.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, Size)
	for i, f := range Canonical {
		out[f.Column] = v[i]
	}
	return out
}

// Feature describes one slot of the vector.
type Feature struct {
	// Column is the name used by the training pipeline and by pre-encoded CSVs.
	Column string `json:"column"`
	// Key is the camelCase name used by the JSON API.
	Key string `json:"key"`
	// Derived marks slots computed from other slots.
	Derived bool `json:"derived"`
}

// Slot indexes into Vector.
const (
	SlotGender = iota
	SlotSeniorCitizen
	SlotPartner
	SlotDependents
	SlotTenure
	SlotPhoneService
	SlotPaperlessBilling
	SlotMonthlyCharges
	SlotTotalCharges
	SlotMultipleLinesYes
	SlotInternetFiberOptic
	SlotInternetNo
	SlotPaymentCreditCardAuto
	SlotPaymentElectronicCheck
	SlotPaymentMailedCheck
	SlotTenureGroupMid
	SlotChargeRatio
	SlotSeniorFiber
	SlotHighRisk
)

// Canonical is the slot order the classifier expects. Changing it silently
// corrupts every prediction.
var Canonical = [Size]Feature{
	SlotGender:                 {Column: "gender", Key: "gender"},
	SlotSeniorCitizen:          {Column: "SeniorCitizen", Key: "seniorCitizen"},
	SlotPartner:                {Column: "Partner", Key: "partner"},
	SlotDependents:             {Column: "Dependents", Key: "dependents"},
	SlotTenure:                 {Column: "tenure", Key: "tenure"},
	SlotPhoneService:           {Column: "PhoneService", Key: "phoneService"},
	SlotPaperlessBilling:       {Column: "PaperlessBilling", Key: "paperlessBilling"},
	SlotMonthlyCharges:         {Column: "MonthlyCharges", Key: "monthlyCharges"},
	SlotTotalCharges:           {Column: "TotalCharges", Key: "totalCharges"},
	SlotMultipleLinesYes:       {Column: "MultipleLines_Yes", Key: "multipleLines_Yes"},
	SlotInternetFiberOptic:     {Column: "InternetService_Fiber optic", Key: "internetService_FiberOptic"},
	SlotInternetNo:             {Column: "InternetService_No", Key: "internetService_No"},
	SlotPaymentCreditCardAuto:  {Column: "PaymentMethod_Credit card (automatic)", Key: "paymentMethod_CreditCardAuto"},
	SlotPaymentElectronicCheck: {Column: "PaymentMethod_Electronic check", Key: "paymentMethod_ElectronicCheck"},
	SlotPaymentMailedCheck:     {Column: "PaymentMethod_Mailed check", Key: "paymentMethod_MailedCheck"},
	SlotTenureGroupMid:         {Column: "TenureGroup_Mid", Key: "tenureGroup_Mid", Derived: true},
	SlotChargeRatio:            {Column: "ChargeRatio", Key: "chargeRatio", Derived: true},
	SlotSeniorFiber:            {Column: "Senior_Fiber", Key: "seniorFiber", Derived: true},
	SlotHighRisk:               {Column: "HighRisk", Key: "highRisk", Derived: true},
}

// Columns returns the training column names in canonical order.
func Columns() []string {
	out := make([]string, Size)
	for i, f := range Canonical {
		out[i] = f.Column
	}
	return out
}

// Keys returns the API keys in canonical order.
func Keys() []string {
	out := make([]string, Size)
	for i, f := range Canonical {
		out[i] = f.Key
	}
	return out
}
