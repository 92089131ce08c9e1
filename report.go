package minlp

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// xmlReport is the serialized solve report.
type xmlReport struct {
	XMLName xml.Name   `xml:"optimizationResults"`
	RunID   string     `xml:"runID,attr"`
	General xmlGeneral `xml:"general"`
	Bounds  xmlBounds  `xml:"bounds"`
	Vars    []xmlVar   `xml:"solution>variable,omitempty"`
	Iters   []xmlIter  `xml:"iterations>iteration,omitempty"`
}

type xmlGeneral struct {
	ModelStatus       string `xml:"modelStatus"`
	TerminationReason string `xml:"terminationReason"`
	Description       string `xml:"description,omitempty"`
	Iterations        int    `xml:"iterationCount"`
	PrimalCandidates  int    `xml:"primalCandidatesChecked"`
}

type xmlBounds struct {
	Primal      float64 `xml:"primal"`
	Dual        float64 `xml:"dual"`
	AbsoluteGap float64 `xml:"absoluteGap"`
	RelativeGap float64 `xml:"relativeGap"`
}

type xmlVar struct {
	Index int     `xml:"idx,attr"`
	Name  string  `xml:"name,attr"`
	Value float64 `xml:",chardata"`
}

type xmlIter struct {
	Index        int     `xml:"idx,attr"`
	DualClass    string  `xml:"dualClass,attr"`
	DualStatus   string  `xml:"dualStatus,attr"`
	DualBound    float64 `xml:"dualBound"`
	PrimalBound  float64 `xml:"primalBound"`
	CutsAdded    int     `xml:"cutsAdded"`
	MaxViolation float64 `xml:"maxViolation"`
	SolveTimeMS  int64   `xml:"solveTimeMs"`
}

// WriteResultsXML serializes the full solve report.
func (s *Solver) WriteResultsXML(w io.Writer) error {
	if s.results == nil {
		return errors.New("no solve results available")
	}
	candidates := 0
	for _, n := range s.results.CandidateStatistics() {
		candidates += n
	}
	rep := xmlReport{
		RunID: s.results.RunID,
		General: xmlGeneral{
			ModelStatus:       s.results.ModelReturnStatus().String(),
			TerminationReason: s.results.TerminationReason().String(),
			Description:       s.results.TerminationDescription(),
			Iterations:        s.results.NumIterations(),
			PrimalCandidates:  candidates,
		},
		Bounds: xmlBounds{
			Primal:      s.PrimalBound(),
			Dual:        s.DualBound(),
			AbsoluteGap: s.results.AbsoluteGap(),
			RelativeGap: s.results.RelativeGap(),
		},
	}
	if point, _, ok := s.PrimalSolution(); ok {
		for i, v := range point {
			rep.Vars = append(rep.Vars, xmlVar{
				Index: i,
				Name:  s.problem.Variables[i].Name,
				Value: v,
			})
		}
	}
	for _, it := range s.results.Iterations() {
		rep.Iters = append(rep.Iters, xmlIter{
			Index:        it.Index,
			DualClass:    it.DualClass.String(),
			DualStatus:   it.DualStatus.String(),
			DualBound:    it.DualBound,
			PrimalBound:  it.PrimalBound,
			CutsAdded:    it.CutsAdded,
			MaxViolation: it.MaxViolation,
			SolveTimeMS:  it.SolveTime.Milliseconds(),
		})
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return errors.Wrap(err, "encoding results")
	}
	return enc.Flush()
}

// TraceLine renders the one-line benchmark trace record: comma separated,
// stable field order, suitable for appending to a shared trace file.
func (s *Solver) TraceLine(instanceName string, elapsed time.Duration) string {
	if s.results == nil {
		return ""
	}
	fields := []string{
		instanceName,
		"MINLP",
		s.results.RunID,
		s.results.ModelReturnStatus().String(),
		s.results.TerminationReason().String(),
		fmt.Sprintf("%.10g", s.PrimalBound()),
		fmt.Sprintf("%.10g", s.DualBound()),
		fmt.Sprintf("%.3f", elapsed.Seconds()),
		fmt.Sprintf("%d", s.results.NumIterations()),
	}
	return strings.Join(fields, ",")
}

// WriteSolFile writes the incumbent in a simple line-oriented format: status,
// objective, then one "name value" line per variable.
func (s *Solver) WriteSolFile(w io.Writer) error {
	if s.results == nil {
		return errors.New("no solve results available")
	}
	point, obj, ok := s.PrimalSolution()
	if !ok {
		_, err := fmt.Fprintf(w, "status %s\n", s.results.ModelReturnStatus())
		return err
	}
	if _, err := fmt.Fprintf(w, "status %s\nobjective %.12g\n", s.results.ModelReturnStatus(), obj); err != nil {
		return err
	}
	for i, v := range point {
		if _, err := fmt.Fprintf(w, "%s %.12g\n", s.problem.Variables[i].Name, v); err != nil {
			return err
		}
	}
	return nil
}
