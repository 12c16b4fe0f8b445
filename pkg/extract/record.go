package extract

// Record holds the five fields pulled out of one document's OCR text.
// JSON keys are the labels downstream consumers read; keep them as-is.
type Record struct {
	Number          string `json:"Number"`
	Rusumi          string `json:"Rusumi"`
	Guvohnoma       string `json:"Guvohnoma"`
	Telefon         string `json:"Telefon"`
	TugallanganSana string `json:"Tugallangan_sana"`
}

// Field is one label/value pair of a Record.
type Field struct {
	Label string
	Value string
}

// ExtractAll runs every recognizer against the same text.
func ExtractAll(text string) Record {
	return Record{
		Number:          Plate(text),
		Rusumi:          Brand(text),
		Guvohnoma:       Certificate(text),
		Telefon:         Phone(text),
		TugallanganSana: Date(text),
	}
}

// Empty reports whether no recognizer matched.
func (r Record) Empty() bool {
	return r.Number == "" && r.Rusumi == "" && r.Guvohnoma == "" && r.Telefon == "" && r.TugallanganSana == ""
}

// Fields returns the record in output order.
func (r Record) Fields() []Field {
	return []Field{
		{Label: "Number", Value: r.Number},
		{Label: "Rusumi", Value: r.Rusumi},
		{Label: "Guvohnoma", Value: r.Guvohnoma},
		{Label: "Telefon", Value: r.Telefon},
		{Label: "Tugallangan_sana", Value: r.TugallanganSana},
	}
}
