package client

// checkVATRequest is the body of a check-vat-number call.
type checkVATRequest struct {
	CountryCode string `json:"countryCode"`
	VATNumber   string `json:"vatNumber"`
}

// CheckVATResponse is the VIES answer for one VAT number.
type CheckVATResponse struct {
	CountryCode string `json:"countryCode"`
	VATNumber   string `json:"vatNumber"`
	RequestDate string `json:"requestDate"`
	Valid       bool   `json:"valid"`
	Name        string `json:"name"`
	Address     string `json:"address"`

	// UserError is VALID/INVALID on success, or an error code such as
	// MS_MAX_CONCURRENT_REQ when the member state could not answer.
	UserError string `json:"userError,omitempty"`

	ActionSucceed *bool          `json:"actionSucceed,omitempty"`
	ErrorWrappers []errorWrapper `json:"errorWrappers,omitempty"`
}

type errorWrapper struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorCode extracts the VIES error code carried by a response, if any.
func (r *CheckVATResponse) errorCode() (code, message string) {
	for _, w := range r.ErrorWrappers {
		if w.Error != "" {
			return w.Error, w.Message
		}
	}
	switch r.UserError {
	case "", "VALID", "INVALID":
		return "", ""
	default:
		return r.UserError, r.UserError
	}
}

// ServiceStatus is the VIES availability report.
type ServiceStatus struct {
	VOW struct {
		Available bool `json:"available"`
	} `json:"vow"`
	Countries []MemberStateStatus `json:"countries"`
}

// MemberStateStatus is the availability of one member state backend.
type MemberStateStatus struct {
	CountryCode  string `json:"countryCode"`
	Availability string `json:"availability"`
}

// Available reports whether the member state backend answers requests.
func (m MemberStateStatus) Available() bool {
	return m.Availability == "Available"
}
