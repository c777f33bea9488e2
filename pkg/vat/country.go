// Package vat defines the VAT validation data model: input records, the closed
// set of VIES jurisdictions, per-record lookup results and the row validator.
package vat

import (
	"fmt"
	"strings"
)

// CountryCode is a VIES member state code.
type CountryCode string

// Jurisdictions accepted by VIES. Greece uses EL, Northern Ireland XI.
const (
	Austria         CountryCode = "AT"
	Belgium         CountryCode = "BE"
	Bulgaria        CountryCode = "BG"
	Cyprus          CountryCode = "CY"
	CzechRepublic   CountryCode = "CZ"
	Germany         CountryCode = "DE"
	Denmark         CountryCode = "DK"
	Estonia         CountryCode = "EE"
	Greece          CountryCode = "EL"
	Spain           CountryCode = "ES"
	Finland         CountryCode = "FI"
	France          CountryCode = "FR"
	Croatia         CountryCode = "HR"
	Hungary         CountryCode = "HU"
	Ireland         CountryCode = "IE"
	Italy           CountryCode = "IT"
	Lithuania       CountryCode = "LT"
	Luxembourg      CountryCode = "LU"
	Latvia          CountryCode = "LV"
	Malta           CountryCode = "MT"
	Netherlands     CountryCode = "NL"
	Poland          CountryCode = "PL"
	Portugal        CountryCode = "PT"
	Romania         CountryCode = "RO"
	Sweden          CountryCode = "SE"
	Slovenia        CountryCode = "SI"
	Slovakia        CountryCode = "SK"
	NorthernIreland CountryCode = "XI"
)

var countryCodes = map[CountryCode]struct{}{
	Austria: {}, Belgium: {}, Bulgaria: {}, Cyprus: {}, CzechRepublic: {},
	Germany: {}, Denmark: {}, Estonia: {}, Greece: {}, Spain: {},
	Finland: {}, France: {}, Croatia: {}, Hungary: {}, Ireland: {},
	Italy: {}, Lithuania: {}, Luxembourg: {}, Latvia: {}, Malta: {},
	Netherlands: {}, Poland: {}, Portugal: {}, Romania: {}, Sweden: {},
	Slovenia: {}, Slovakia: {}, NorthernIreland: {},
}

// IsValid reports whether c belongs to the VIES jurisdiction set.
func (c CountryCode) IsValid() bool {
	_, ok := countryCodes[c]
	return ok
}

func (c CountryCode) String() string {
	return string(c)
}

// ParseCountryCode returns the jurisdiction for s. Matching is exact: VIES
// codes are upper case and "gr" or "GR" are not accepted.
func ParseCountryCode(s string) (CountryCode, error) {
	c := CountryCode(strings.TrimSpace(s))
	if !c.IsValid() {
		return "", fmt.Errorf("unknown country code %q", s)
	}
	return c, nil
}

// CountryCodes returns the jurisdiction set in alphabetical order.
func CountryCodes() []CountryCode {
	return []CountryCode{
		Austria, Belgium, Bulgaria, Cyprus, CzechRepublic, Germany, Denmark,
		Estonia, Greece, Spain, Finland, France, Croatia, Hungary, Ireland,
		Italy, Lithuania, Luxembourg, Latvia, Malta, Netherlands, Poland,
		Portugal, Romania, Sweden, Slovenia, Slovakia, NorthernIreland,
	}
}
