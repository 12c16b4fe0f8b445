// Package extract turns noisy OCR text from a vehicle registration document into
// five fields: plate, brand, certificate id, phone and completion date.
//
// Every recognizer is a pure function returning "" when nothing matches.
package extract
