package otfadmit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/nsip/otf-admit/internal/batch"
	"github.com/nsip/otf-admit/internal/calculator"
	"github.com/nsip/otf-admit/internal/model"
	"github.com/nsip/otf-admit/internal/util"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

type OtfAdmitService struct {
	// embedded web server to handle calculation requests
	e *echo.Echo
	// the unique name of this service when running multiple instances
	serviceName string
	// the unique id of this service when running multiple instances
	serviceID string
	// the host address this service instance is running on
	serviceHost string
	// the port that this service instance is running on
	servicePort int
	// optional directory of extra institution definitions
	institutionDir string
	// batch pool size
	workers int
	// calculators by institution code, read-only once loaded
	registry *calculator.Registry
	// runs batch requests
	runner *batch.Runner
}

//
// summary of one institution returned by
// the institutions listing
//
type Institution struct {
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	Admissions map[string]string `json:"admissions"`
	Units      map[string]string `json:"units"`
}

//
// create a new service instance
//
func New(options ...Option) (*OtfAdmitService, error) {

	srvc := OtfAdmitService{}

	defaults := []Option{Name(""), ID(""), Host(""), Port(0)}
	if err := srvc.setOptions(append(defaults, options...)...); err != nil {
		return nil, err
	}

	reg, err := calculator.Load(srvc.institutionDir)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load institutions")
	}
	srvc.registry = reg
	srvc.runner = batch.New(srvc.workers)

	srvc.e = echo.New()
	srvc.e.HideBanner = true
	srvc.e.Logger.SetLevel(log.INFO)
	srvc.e.Use(middleware.Recover())
	// add pingable method to know we're up
	srvc.e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, "OK")
	})
	srvc.e.GET("/institutions", srvc.listInstitutions)
	srvc.e.GET("/institutions/:code/stages", srvc.describeInstitution)
	srvc.e.POST("/calculate", srvc.buildCalculateHandler())
	srvc.e.POST("/calculate/batch", srvc.buildBatchHandler())

	return &srvc, nil
}

//
// start the service running
//
func (s *OtfAdmitService) Start() {

	address := fmt.Sprintf("%s:%d", s.serviceHost, s.servicePort)
	go func(addr string) {
		if err := s.e.Start(addr); err != nil && err != http.ErrServerClosed {
			s.e.Logger.Info("error starting server: ", err, ", shutting down...")
			// attempt clean shutdown by raising sig int
			p, _ := os.FindProcess(os.Getpid())
			p.Signal(os.Interrupt)
		}
	}(address)

}

//
// reads the request body and the calculator
// named by its institution field
//
func (s *OtfAdmitService) readRequest(c echo.Context) ([]byte, *calculator.Calculator, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "cannot read request body")
	}
	if !gjson.ValidBytes(body) {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "request body is not valid json")
	}
	code := gjson.GetBytes(body, "institution").String()
	if code == "" {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "must supply a value for institution")
	}
	calc, err := s.registry.Lookup(code)
	if errors.Is(err, calculator.ErrUnknownInstitution) {
		return nil, nil, echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return body, calc, nil
}

//
// decodes one student, giving it an id when
// the caller supplied none; null subjects are rejected
//
func decodeStudent(raw string) (*model.Student, error) {
	st := &model.Student{}
	if err := json.Unmarshal([]byte(raw), st); err != nil {
		return nil, err
	}
	for i, sub := range st.Subjects {
		if sub == nil {
			return nil, errors.Errorf("subject %d is null", i)
		}
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	return st, nil
}

//
// creates the single-student calculate method
// requires a json payload of
// institution: code of the institution whose rules apply
// student: the applicant with their transcript subjects
//
func (s *OtfAdmitService) buildCalculateHandler() echo.HandlerFunc {

	sName := s.serviceName
	sID := s.serviceID

	return func(c echo.Context) error {
		body, calc, err := s.readRequest(c)
		if err != nil {
			return err
		}

		raw := gjson.GetBytes(body, "student")
		if !raw.IsObject() {
			return echo.NewHTTPError(http.StatusBadRequest, "must supply a student object")
		}
		st, err := decodeStudent(raw.Raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.Wrap(err, "invalid student").Error())
		}

		result := calc.Calculate(st)
		if result.Disqualified {
			c.Logger().Infoj(log.JSON{"institution": calc.Code(), "student": st.ID, "disqualified": result.Reason})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"institution":      calc.Code(),
			"scoreResult":      result,
			"subjects":         st.Subjects,
			"admitServiceID":   sID,
			"admitServiceName": sName,
		})
	}
}

//
// creates the batch calculate method
// requires a json payload of
// institution: code of the institution whose rules apply
// students: array of applicants
//
func (s *OtfAdmitService) buildBatchHandler() echo.HandlerFunc {

	sName := s.serviceName
	sID := s.serviceID

	return func(c echo.Context) error {
		body, calc, err := s.readRequest(c)
		if err != nil {
			return err
		}

		raw := gjson.GetBytes(body, "students")
		if !raw.IsArray() || gjson.GetBytes(body, "students.#").Int() == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "must supply a non-empty students array")
		}
		var students []*model.Student
		var decodeErr error
		raw.ForEach(func(_, v gjson.Result) bool {
			st, err := decodeStudent(v.Raw)
			if err != nil {
				decodeErr = errors.Wrapf(err, "invalid student %d", len(students))
				return false
			}
			students = append(students, st)
			return true
		})
		if decodeErr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, decodeErr.Error())
		}

		defer util.TimeTrack(time.Now(), "batch "+calc.Code())
		report, err := s.runner.Run(c.Request().Context(), calc, students)
		if err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, errors.Wrap(err, "batch cancelled").Error())
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"report":           report,
			"admitServiceID":   sID,
			"admitServiceName": sName,
		})
	}
}

//
// lists the loaded institutions
//
func (s *OtfAdmitService) listInstitutions(c echo.Context) error {
	out := []Institution{}
	for _, code := range s.registry.Codes() {
		calc, err := s.registry.Lookup(code)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		out = append(out, Institution{
			Code:       calc.Code(),
			Name:       calc.Name(),
			Admissions: calc.Catalog().Admissions(),
			Units:      calc.Catalog().Units(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

//
// describes the stage chain of one institution
//
func (s *OtfAdmitService) describeInstitution(c echo.Context) error {
	calc, err := s.registry.Lookup(c.Param("code"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"institution": calc.Code(),
		"name":        calc.Name(),
		"stages":      calc.Describe(),
	})
}

//
// shut the server down gracefully
//
func (s *OtfAdmitService) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.e.Shutdown(ctx); err != nil {
		fmt.Println("could not shut down server cleanly: ", err)
		s.e.Logger.Fatal(err)
	}

}

func (s *OtfAdmitService) PrintConfig() {

	fmt.Println("\n\tOTF-Admit Service Configuration")
	fmt.Println("\t---------------------------------")
	fmt.Println()

	s.printID()
	s.printInstitutions()

}

func (s *OtfAdmitService) printID() {
	fmt.Println("\tservice name:\t\t", s.serviceName)
	fmt.Println("\tservice ID:\t\t", s.serviceID)
	fmt.Println("\tservice host:\t\t", s.serviceHost)
	fmt.Println("\tservice port:\t\t", s.servicePort)
	fmt.Println("\tbatch workers:\t\t", s.runner.Workers())
}

func (s *OtfAdmitService) printInstitutions() {
	dir := s.institutionDir
	if dir == "" {
		dir = "(bundled only)"
	}
	fmt.Println("\tinstitution dir:\t", dir)
	fmt.Println("\tinstitutions:\t\t", s.registry.Codes())
}
