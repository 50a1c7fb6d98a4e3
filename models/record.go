package models

// Unavailable is the sentinel stored in any field that could not be read.
const Unavailable = "unavailable"

// Record is one output row. Every field is always set; unresolved fields
// hold Unavailable.
type Record struct {
	FullName   string `json:"full_name"`
	FatherName string `json:"father_name"`
	Address    string `json:"address"`
	Country    string `json:"country"`
	State      string `json:"state"`
	City       string `json:"city"`
	Price      string `json:"price"`
}

// RecordHeader is the fixed, ordered field list used by every sink.
var RecordHeader = []string{"Full Name", "Father Name", "Address", "Country", "State", "City", "Price"}

// EmptyRecord returns a record with every field set to Unavailable.
func EmptyRecord() Record {
	return Record{
		FullName:   Unavailable,
		FatherName: Unavailable,
		Address:    Unavailable,
		Country:    Unavailable,
		State:      Unavailable,
		City:       Unavailable,
		Price:      Unavailable,
	}
}

// Values returns the fields in RecordHeader order.
func (r Record) Values() []string {
	return []string{r.FullName, r.FatherName, r.Address, r.Country, r.State, r.City, r.Price}
}

// HasPrice reports whether a price was resolved.
func (r Record) HasPrice() bool {
	return r.Price != "" && r.Price != Unavailable
}
