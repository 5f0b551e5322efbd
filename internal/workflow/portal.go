package workflow

import (
	"strings"

	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/failure"
)

// Portal element selectors.
const (
	selCNRInput      = "#cino"
	selCaptchaImage  = "#captcha_image"
	selCNRCaptcha    = "#fcaptcha_code"
	selSearchButton  = "#searchbtn"
	selCaseStatus    = ".case_status_table"
	selCauseCaptcha  = "#cause_list_captcha_code"
	selCauseDate     = "#causelist_date"
	selErrorOverlay  = "#validateError button"
	causeListTableID = "dispTable"
	selCauseTable    = "#" + causeListTableID
)

// selection is one dependent drop-down of the cause-list form.
type selection struct {
	field    string
	selector string
	value    func(CauseListInitRequest) string
}

// Order matters: each control's options are loaded from the previous choice.
var causeListSelections = []selection{
	{field: "state", selector: "#sess_state_code", value: func(r CauseListInitRequest) string { return r.State }},
	{field: "district", selector: "#sess_dist_code", value: func(r CauseListInitRequest) string { return r.District }},
	{field: "court_complex", selector: "#court_complex_code", value: func(r CauseListInitRequest) string { return r.CourtComplex }},
	{field: "court_name", selector: "#CL_court_no", value: func(r CauseListInitRequest) string { return r.CourtName }},
}

// CaseType is a cause-list category.
type CaseType string

const (
	Civil    CaseType = "civil"
	Criminal CaseType = "criminal"
)

// caseTypeControls maps each category to the submit control that lists it.
var caseTypeControls = map[CaseType]string{
	Civil:    `button[onclick*="submit_causelist"][onclick*="civ"]`,
	Criminal: `button[onclick*="submit_causelist"][onclick*="cri"]`,
}

var caseTypeAliases = map[string]CaseType{
	"":         Civil,
	"civ":      Civil,
	"civil":    Civil,
	"cri":      Criminal,
	"criminal": Criminal,
}

// ResolveCaseType returns the canonical category and its control selector.
// An empty input means civil.
func ResolveCaseType(raw string) (CaseType, string, error) {
	ct, ok := caseTypeAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", "", failure.New(failure.CaseTypeNotFound, "unknown case type %q; expected civil or criminal", raw)
	}
	return ct, caseTypeControls[ct], nil
}
