package calendar

import (
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

// DayType is the closed set of calendar day classifications.
type DayType string

const (
	SchoolDay          DayType = "letivo"
	NonSchoolDay       DayType = "nao_letivo"
	NationalHoliday    DayType = "feriado_nacional"
	MunicipalHoliday   DayType = "feriado_municipal"
	OptionalDay        DayType = "ponto_facultativo"
	Vacation           DayType = "ferias"
	Recess             DayType = "recesso"
	Planning           DayType = "planejamento"
	RecoveryEvaluation DayType = "avaliacao_recuperacao"
	Event              DayType = "evento"
)

var (
	DayTypes = []DayType{
		SchoolDay, NonSchoolDay, NationalHoliday, MunicipalHoliday, OptionalDay,
		Vacation, Recess, Planning, RecoveryEvaluation, Event,
	}

	dayTypeDescriptions = map[DayType]string{
		SchoolDay:          "Dia Letivo",
		NonSchoolDay:       "Dia Não Letivo",
		NationalHoliday:    "Feriado Nacional",
		MunicipalHoliday:   "Feriado Municipal",
		OptionalDay:        "Ponto Facultativo",
		Vacation:           "Férias",
		Recess:             "Recesso",
		Planning:           "Planejamento",
		RecoveryEvaluation: "Avaliação de Recuperação",
		Event:              "Evento",
	}

	// day types counted as school days in monthly summaries
	schoolDayTypes = map[DayType]bool{
		SchoolDay:          true,
		Event:              true,
		RecoveryEvaluation: true,
		Planning:           true,
	}
)

// ParseDayType returns ErrUnrecognizedDayType when `s` is not one of DayTypes.
func ParseDayType(s string) (DayType, error) {
	dt := DayType(s)
	if _, ok := dayTypeDescriptions[dt]; !ok {
		return "", errors.Wrapf(ErrUnrecognizedDayType, "%q", s)
	}
	return dt, nil
}

func (dt DayType) Description() string { return dayTypeDescriptions[dt] }
func (dt DayType) IsSchoolDay() bool   { return schoolDayTypes[dt] }
func (dt DayType) String() string      { return string(dt) }

type StageID string

const (
	StageI   StageID = "I"
	StageII  StageID = "II"
	StageIII StageID = "III"
	StageIV  StageID = "IV"
)

var StageIDs = []StageID{StageI, StageII, StageIII, StageIV}

func ParseStageID(s string) (StageID, error) {
	for _, id := range StageIDs {
		if string(id) == s {
			return id, nil
		}
	}
	return "", errors.Wrapf(ErrInvalidStage, "unknown stage id %q", s)
}

type (
	Stage struct {
		ID        StageID `json:"id" validate:"required,stageid"`
		StartDate Date    `json:"start_date" validate:"required"`
		EndDate   Date    `json:"end_date" validate:"required"`
	}

	Day struct {
		Date   Date     `json:"date" validate:"required"`
		Type   DayType  `json:"type" validate:"required,daytype"`
		Stage  *StageID `json:"stage" validate:"omitempty,stageid"`
		Labels []string `json:"labels"`
	}

	LegendItem struct {
		Type        DayType     `json:"type"`
		Description string      `json:"description"`
		ColorHex    null.String `json:"color_hex"`
	}

	MonthlyMeta struct {
		Month      int `json:"month" validate:"min=1,max=12"`
		SchoolDays int `json:"school_days" validate:"min=0"`
	}

	// CalendarData is the day-by-day calendar of a year.
	CalendarData struct {
		Year        int           `json:"year"`
		Stages      []Stage       `json:"stages"`
		Days        []Day         `json:"days"`
		Legend      []LegendItem  `json:"legend"`
		MonthlyMeta []MonthlyMeta `json:"monthly_meta"`
	}

	// AcademicCalendar is the stored CalendarData snapshot of a year.
	AcademicCalendar struct {
		ID               int          `json:"id"`
		Year             int          `json:"year"`
		Data             CalendarData `json:"calendar_data"`
		SourceDocumentID null.String  `json:"source_document_id"`
		ProcessedAt      time.Time    `json:"processed_at"`
	}

	Summary struct {
		ID          int       `json:"id"`
		Year        int       `json:"year"`
		ProcessedAt time.Time `json:"processed_at"`
		StageCount  int       `json:"stage_count"`
		SchoolDays  int       `json:"school_days"`
	}

	// SourceDocument is an uploaded calendar document.
	SourceDocument struct {
		ID         string
		Year       int
		Format     string
		Content    []byte
		UploadedAt time.Time
	}

	// FixtureDay is a stored per-date override. Type is kept raw since stored rows are not trusted.
	FixtureDay struct {
		Date   Date     `json:"date"`
		Year   int      `json:"year"`
		Type   string   `json:"type"`
		Labels []string `json:"labels"`
	}
)

// normalize makes sure list fields serialize as arrays.
func (data *CalendarData) normalize() {
	if data.Stages == nil {
		data.Stages = []Stage{}
	}
	if data.Days == nil {
		data.Days = []Day{}
	}
	if data.Legend == nil {
		data.Legend = []LegendItem{}
	}
	for i := range data.Days {
		if data.Days[i].Labels == nil {
			data.Days[i].Labels = []string{}
		}
	}
}

func (cal AcademicCalendar) Summary() Summary {
	var schoolDays int
	for _, d := range cal.Data.Days {
		if d.Type.IsSchoolDay() {
			schoolDays++
		}
	}
	return Summary{
		ID:          cal.ID,
		Year:        cal.Year,
		ProcessedAt: cal.ProcessedAt,
		StageCount:  len(cal.Data.Stages),
		SchoolDays:  schoolDays,
	}
}

// requests

type (
	NewCalendar struct {
		Year              int           `json:"year" validate:"required,min=1900,max=2999"`
		DefaultLegendType string        `json:"default_legend_type" validate:"required,daytype"`
		Stages            []Stage       `json:"stages" validate:"dive"`
		Days              []Day         `json:"days" validate:"dive"`
		MonthlyMeta       []MonthlyMeta `json:"monthly_meta" validate:"omitempty,dive"`
	}

	InitializeCalendar struct {
		Year              int    `json:"-"`
		DefaultLegendType string `json:"default_legend_type" validate:"required,daytype"`
	}

	ProcessRequest struct {
		DefaultLegendType string `json:"default_legend_type" validate:"required,daytype"`
		Filename          string `json:"-"`
		Content           []byte `json:"-"`
	}

	UpdateLegend struct {
		Description string      `json:"description" validate:"required,notblank,max=200"`
		ColorHex    null.String `json:"color_hex" validate:"hexcolor_"`
	}
)
