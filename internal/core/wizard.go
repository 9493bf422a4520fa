package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fincollect/console/internal/reporting"
)

// DefaultNavDelay is how long the submission confirmation stays on screen
// before navigation to the report detail view is triggered. It is a UX
// grace period, not a correctness requirement.
const DefaultNavDelay = 2 * time.Second

// Step is the wizard's position in the submission flow.
type Step int

const (
	// StepSelect gathers the series, institution, and reporting period.
	StepSelect Step = iota
	// StepEnter is the data-entry phase, form or CSV.
	StepEnter
	// StepSubmitted is terminal: the report was created.
	StepSubmitted
)

func (s Step) String() string {
	switch s {
	case StepSelect:
		return "select"
	case StepEnter:
		return "enter"
	case StepSubmitted:
		return "submitted"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// EntryMode selects which data-entry surface feeds the submission.
type EntryMode string

const (
	ModeForm EntryMode = "form"
	ModeCSV  EntryMode = "csv"
)

// CSVFile is an operator-selected file held opaquely until submission.
// The content is never parsed or structurally checked client-side.
type CSVFile struct {
	Name string
	Data []byte
}

// Dispatcher is the slice of the reporting client the wizard needs to
// create reports.
type Dispatcher interface {
	CreateReport(ctx context.Context, sub reporting.Submission) (int64, error)
	CreateReportCSV(ctx context.Context, sel reporting.Selections, filename string, file []byte) (int64, error)
}

// Sentinel errors for blocked wizard actions.
var (
	ErrBusy             = errors.New("wizard is busy with an in-flight operation")
	ErrFieldsInvalid    = errors.New("one or more fields failed validation")
	ErrNoFile           = errors.New("no csv file selected")
	ErrAlreadySubmitted = errors.New("report already submitted")
	ErrInstitutionFixed = errors.New("institution is preset for this session")
)

// PreconditionError is an unmet requirement for leaving the selection
// step. Only the first unmet condition is reported at a time.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string { return e.Message }

// WizardOptions configures a new wizard.
type WizardOptions struct {
	// PresetInstitution pre-selects and locks the institution, used when
	// the acting user is scoped to a single institution.
	PresetInstitution string

	// NavDelay overrides DefaultNavDelay. Zero means the default.
	NavDelay time.Duration

	// Navigate is invoked (on a timer goroutine) with the new report's
	// identifier after NavDelay once a dispatch succeeds.
	Navigate func(reportID int64)

	// Limiter, when set, bounds concurrent dispatches across wizards.
	Limiter *DispatchLimiter
}

// Wizard is the submission state machine. It owns all workflow state
// explicitly; nothing lives in ambient globals. All methods are safe for
// concurrent use, and mutating actions are refused while a dispatch is
// outstanding so the same report is never touched by two in-flight
// operations.
type Wizard struct {
	loader     *SchemaLoader
	dispatcher Dispatcher
	navDelay   time.Duration
	navigate   func(reportID int64)
	limiter    *DispatchLimiter

	mu                sync.Mutex
	step              Step
	seriesID          string
	institutionID     string
	institutionLocked bool
	period            string
	mode              EntryMode
	fields            []FieldDescriptor
	file              *CSVFile
	banner            string
	notice            string
	busy              bool
	reportID          int64
}

// NewWizard creates a wizard at the selection step in form mode.
func NewWizard(loader *SchemaLoader, dispatcher Dispatcher, opts WizardOptions) *Wizard {
	navDelay := opts.NavDelay
	if navDelay <= 0 {
		navDelay = DefaultNavDelay
	}
	return &Wizard{
		loader:            loader,
		dispatcher:        dispatcher,
		navDelay:          navDelay,
		navigate:          opts.Navigate,
		limiter:           opts.Limiter,
		mode:              ModeForm,
		institutionID:     opts.PresetInstitution,
		institutionLocked: opts.PresetInstitution != "",
	}
}

// SelectSeries records the series choice and rebuilds the field set from
// its schema. Prior descriptors are destroyed either way: a load failure
// leaves the field set cleared, never partial, and raises a banner.
func (w *Wizard) SelectSeries(ctx context.Context, seriesID string) error {
	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		return ErrBusy
	}
	w.seriesID = seriesID
	w.fields = nil
	w.mu.Unlock()

	if seriesID == "" {
		return nil
	}

	fields, err := w.loader.Load(ctx, seriesID)

	w.mu.Lock()
	defer w.mu.Unlock()

	// A slower load for a superseded selection must not clobber the
	// current series' field set.
	if w.seriesID != seriesID {
		return nil
	}

	if err != nil {
		w.banner = "Failed to load series details. Please try again."
		return err
	}

	w.fields = fields
	w.banner = ""
	return nil
}

// SelectInstitution records the institution choice.
func (w *Wizard) SelectInstitution(institutionID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	if w.institutionLocked {
		return ErrInstitutionFixed
	}
	w.institutionID = institutionID
	return nil
}

// SetPeriod records the free-text reporting period label.
func (w *Wizard) SetPeriod(period string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	w.period = period
	return nil
}

// SetMode switches the active entry surface. The inactive mode's content
// survives the switch; only the active mode is used at submission time.
func (w *Wizard) SetMode(mode EntryMode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	if mode != ModeForm && mode != ModeCSV {
		return fmt.Errorf("unknown entry mode %q", mode)
	}
	w.mode = mode
	return nil
}

// SetFieldValue updates one descriptor's value, clearing its error.
func (w *Wizard) SetFieldValue(index int, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	if index < 0 || index >= len(w.fields) {
		return fmt.Errorf("field index %d out of range", index)
	}
	w.fields[index].SetValue(value)
	return nil
}

// AttachFile replaces the selected CSV file. At most one file is held.
func (w *Wizard) AttachFile(name string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	w.file = &CSVFile{Name: name, Data: data}
	return nil
}

// Back returns from data entry to selection. Only the transient banner
// is cleared; selections, field values, and the attached file survive.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	if w.step != StepEnter {
		return fmt.Errorf("cannot go back from step %s", w.step)
	}
	w.step = StepSelect
	w.banner = ""
	return nil
}

// Next advances the wizard. From the selection step it checks series,
// then institution, then period, surfacing only the first unmet
// condition. From the data-entry step it gates on the active mode's
// validity and, when valid, dispatches the submission.
func (w *Wizard) Next(ctx context.Context) error {
	w.mu.Lock()

	if w.busy {
		w.mu.Unlock()
		return ErrBusy
	}

	switch w.step {
	case StepSelect:
		defer w.mu.Unlock()
		return w.advanceFromSelect()
	case StepEnter:
		return w.submitLocked(ctx)
	default:
		w.mu.Unlock()
		return ErrAlreadySubmitted
	}
}

// advanceFromSelect checks the selection preconditions in order. Caller
// holds the lock.
func (w *Wizard) advanceFromSelect() error {
	var msg string
	switch {
	case w.seriesID == "":
		msg = "Please select a series."
	case w.institutionID == "":
		msg = "Please select an institution."
	case strings.TrimSpace(w.period) == "":
		msg = "Please enter a reporting period."
	}

	if msg != "" {
		w.banner = msg
		return &PreconditionError{Message: msg}
	}

	w.step = StepEnter
	w.banner = ""
	return nil
}

// submitLocked validates the active entry mode and dispatches. The lock
// is held on entry and released before the creation call so the wizard
// stays inspectable while the call is outstanding; busy blocks every
// other action in the meantime.
func (w *Wizard) submitLocked(ctx context.Context) error {
	sel := reporting.Selections{
		SeriesID:        w.seriesID,
		InstitutionID:   w.institutionID,
		ReportingPeriod: w.period,
	}

	var create func(context.Context) (int64, error)

	switch w.mode {
	case ModeForm:
		invalid := false
		for i := range w.fields {
			if fieldErr := ValidateField(w.fields[i]); fieldErr != nil {
				w.fields[i].Err = fieldErr
				invalid = true
			}
		}
		if invalid {
			w.mu.Unlock()
			return ErrFieldsInvalid
		}

		// Only descriptors from the selected series feed the payload, so
		// the data mapping never carries identifiers outside the series'
		// field set.
		data := make(map[string]string, len(w.fields))
		for _, f := range w.fields {
			data[f.MDRMID] = f.Value
		}
		create = func(ctx context.Context) (int64, error) {
			return w.dispatcher.CreateReport(ctx, reporting.Submission{Selections: sel, Data: data})
		}

	case ModeCSV:
		if w.file == nil {
			w.banner = "Please select a CSV file to upload."
			w.mu.Unlock()
			return ErrNoFile
		}
		name, fileData := w.file.Name, w.file.Data
		create = func(ctx context.Context) (int64, error) {
			return w.dispatcher.CreateReportCSV(ctx, sel, name, fileData)
		}
	}

	w.busy = true
	w.mu.Unlock()

	id, err := w.dispatch(ctx, create)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false

	if err != nil {
		w.banner = dispatchBanner(err)
		return err
	}

	w.step = StepSubmitted
	w.reportID = id
	w.banner = ""
	w.notice = fmt.Sprintf("Report submitted successfully with ID: %d", id)

	if w.navigate != nil {
		navigate := w.navigate
		time.AfterFunc(w.navDelay, func() { navigate(id) })
	}

	return nil
}

// dispatch runs the creation call, holding a limiter slot when a limiter
// is configured.
func (w *Wizard) dispatch(ctx context.Context, create func(context.Context) (int64, error)) (int64, error) {
	if w.limiter != nil {
		if err := w.limiter.Acquire(ctx); err != nil {
			return 0, err
		}
		defer w.limiter.Release()
	}
	return create(ctx)
}

// dispatchBanner picks the banner text for a failed dispatch: the
// service's detail verbatim when present, otherwise a generic message.
func dispatchBanner(err error) string {
	var apiErr *reporting.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	if errors.Is(err, ErrTooManyDispatches) {
		return "The system is busy. Please try again in a moment."
	}
	return "Failed to submit report. Please try again."
}

// WizardState is a point-in-time copy of the wizard for display.
type WizardState struct {
	Step              string            `json:"step"`
	SeriesID          string            `json:"series_id"`
	InstitutionID     string            `json:"institution_id"`
	InstitutionLocked bool              `json:"institution_locked"`
	ReportingPeriod   string            `json:"reporting_period"`
	Mode              EntryMode         `json:"mode"`
	Fields            []FieldDescriptor `json:"fields"`
	FileName          string            `json:"file_name,omitempty"`
	Banner            string            `json:"banner,omitempty"`
	Notice            string            `json:"notice,omitempty"`
	Busy              bool              `json:"busy"`
	ReportID          int64             `json:"report_id,omitempty"`
}

// State returns a snapshot. The descriptor slice is copied so callers
// cannot mutate wizard state through it.
func (w *Wizard) State() WizardState {
	w.mu.Lock()
	defer w.mu.Unlock()

	fields := make([]FieldDescriptor, len(w.fields))
	copy(fields, w.fields)

	state := WizardState{
		Step:              w.step.String(),
		SeriesID:          w.seriesID,
		InstitutionID:     w.institutionID,
		InstitutionLocked: w.institutionLocked,
		ReportingPeriod:   w.period,
		Mode:              w.mode,
		Fields:            fields,
		Banner:            w.banner,
		Notice:            w.notice,
		Busy:              w.busy,
		ReportID:          w.reportID,
	}
	if w.file != nil {
		state.FileName = w.file.Name
	}
	return state
}
