package features

// binaryMap is a two-valued categorical column. The domain is closed: any
// other value is an error because 0 is itself a valid category.
type binaryMap struct {
	column string
	slot   int
	values map[string]float64
}

// oneHotMap is a categorical column spread over indicator slots. Values not
// listed leave every slot at 0.
type oneHotMap struct {
	column string
	domain []string
	slots  map[string]int
}

var (
	// Male=0 / Female=1 matches the training-time encoding.
	genderValues = map[string]float64{"Male": 0, "Female": 1}
	yesNoValues  = map[string]float64{"Yes": 1, "No": 0}
)

var binaryTable = []binaryMap{
	{column: ColGender, slot: SlotGender, values: genderValues},
	{column: ColPartner, slot: SlotPartner, values: yesNoValues},
	{column: ColDependents, slot: SlotDependents, values: yesNoValues},
	{column: ColPhoneService, slot: SlotPhoneService, values: yesNoValues},
	{column: ColPaperlessBilling, slot: SlotPaperlessBilling, values: yesNoValues},
	{column: ColMultipleLines, slot: SlotMultipleLinesYes, values: yesNoValues},
}

var oneHotTable = []oneHotMap{
	{
		column: ColInternetService,
		domain: []string{"Fiber optic", "DSL", "No"},
		slots: map[string]int{
			"Fiber optic": SlotInternetFiberOptic,
			"No":          SlotInternetNo,
		},
	},
	{
		column: ColPaymentMethod,
		domain: []string{"Credit card (automatic)", "Electronic check", "Mailed check", "Bank transfer (automatic)"},
		slots: map[string]int{
			"Credit card (automatic)": SlotPaymentCreditCardAuto,
			"Electronic check":        SlotPaymentElectronicCheck,
			"Mailed check":            SlotPaymentMailedCheck,
		},
	},
}

// numericTable lists the numeric source columns and their slots.
var numericTable = []struct {
	column string
	slot   int
}{
	{ColTenure, SlotTenure},
	{ColMonthlyCharges, SlotMonthlyCharges},
	{ColTotalCharges, SlotTotalCharges},
}

func (m oneHotMap) known(v string) bool {
	for _, d := range m.domain {
		if d == v {
			return true
		}
	}
	return false
}

// derive fills the engineered slots from the already encoded ones. The order
// of statements is the dependency order.
func derive(v *Vector) {
	tenure := v[SlotTenure]
	if tenure >= 12 && tenure <= 36 {
		v[SlotTenureGroupMid] = 1
	} else {
		v[SlotTenureGroupMid] = 0
	}

	// +1 keeps TotalCharges=0 finite and must match the training pipeline.
	v[SlotChargeRatio] = v[SlotMonthlyCharges] / (v[SlotTotalCharges] + 1)

	v[SlotSeniorFiber] = v[SlotSeniorCitizen] * v[SlotInternetFiberOptic]

	if v[SlotMonthlyCharges] > 80 {
		v[SlotHighRisk] = 1
	} else {
		v[SlotHighRisk] = 0
	}
}
