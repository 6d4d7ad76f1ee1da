// Package exporter turns worker-produced artifacts into user-chosen
// destination files: prompt, select worker, invoke, copy, open.
package exporter

import (
	"errors"
	"fmt"
)

// Kind is the artifact format of an export. The (Kind, Section) pair selects
// the worker script; unmatched pairs are an explicit unsupported result, not
// a fallthrough.
type Kind int

const (
	CSV Kind = iota
	PDF
)

func (k Kind) String() string {
	switch k {
	case CSV:
		return "csv"
	case PDF:
		return "pdf"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Ext returns the destination filename extension for the kind.
func (k Kind) Ext() string { return k.String() }

func ParseKind(s string) (Kind, error) {
	switch s {
	case "csv":
		return CSV, nil
	case "pdf":
		return PDF, nil
	default:
		return 0, fmt.Errorf("unknown export kind %q", s)
	}
}

// Section is a named data domain of the dashboard. The set is closed: it
// determines both the service API route and the worker scripts that apply.
type Section string

const (
	SectionBitcoin       Section = "bitcoin"
	SectionEth           Section = "eth"
	SectionBinanceMarket Section = "binance_market"
	SectionBinancePolar  Section = "binance_polar"
	SectionMarketBrain   Section = "marketbrain"
)

// Sections lists every known section.
func Sections() []Section {
	return []Section{
		SectionBitcoin,
		SectionEth,
		SectionBinanceMarket,
		SectionBinancePolar,
		SectionMarketBrain,
	}
}

func ParseSection(s string) (Section, error) {
	for _, sec := range Sections() {
		if string(sec) == s {
			return sec, nil
		}
	}
	return "", fmt.Errorf("unknown section %q", s)
}

// ErrUnsupported means no worker is wired for the requested (kind, section)
// pair.
var ErrUnsupported = errors.New("export is not supported for this section")

// ErrDisabled means the pair is known and deliberately switched off. Kept
// distinct from ErrUnsupported so the GUI can grey out the affordance while
// the backend still guards against a stale one being triggered.
var ErrDisabled = errors.New("PDF export is disabled for the polar view")

// ContractError means the worker ran and exited 0 but violated its output
// contract (stdout was not the path of a readable artifact). Distinct from a
// worker that explicitly failed.
type ContractError struct {
	Script string
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("worker %s violated its output contract: %s", e.Script, e.Reason)
}

// Job is one export request. Value object: immutable once submitted.
type Job struct {
	ID      string
	Kind    Kind
	Section Section
	// Params carries the worker parameters; "symbol", "startDate" and
	// "endDate" are the ones every export worker understands.
	Params map[string]string
	// Chart is an optional rendered chart image (PNG bytes) for kinds that
	// embed one.
	Chart []byte
}

// Symbol returns the job's symbol parameter, if any.
func (j Job) Symbol() string { return j.Params["symbol"] }

// DefaultFilename derives the destination default from section, symbol and
// date range.
func (j Job) DefaultFilename() string {
	name := string(j.Section)
	if sym := j.Params["symbol"]; sym != "" {
		name += "_" + sym
	}
	if start := j.Params["startDate"]; start != "" {
		name += "_" + start
	}
	if end := j.Params["endDate"]; end != "" {
		name += "_" + end
	}
	return name + "." + j.Kind.Ext()
}

// workerSpec binds a (kind, section) pair to a worker script and its fixed
// positional argument order. The orders are part of each worker's contract
// and differ between workers.
type workerSpec struct {
	script      string
	acceptChart bool
	args        func(params map[string]string, chartPath string) []string
}

type workerKey struct {
	kind    Kind
	section Section
}

// flagArgs is the `SYMBOL --start-date S --end-date E` convention.
func flagArgs(params map[string]string, chartPath string) []string {
	args := []string{
		params["symbol"],
		"--start-date", params["startDate"],
		"--end-date", params["endDate"],
	}
	if chartPath != "" {
		args = append(args, chartPath)
	}
	return args
}

// positionalArgs is the `SYMBOL S E` convention.
func positionalArgs(params map[string]string, chartPath string) []string {
	args := []string{params["symbol"], params["startDate"], params["endDate"]}
	if chartPath != "" {
		args = append(args, chartPath)
	}
	return args
}

var workers = map[workerKey]workerSpec{
	{CSV, SectionBinanceMarket}: {
		script: "export_binance_market_csv.py",
		args:   flagArgs,
	},
	{PDF, SectionBinanceMarket}: {
		script:      "export_pdf_binance_market.py",
		acceptChart: true,
		args:        flagArgs,
	},
	{CSV, SectionMarketBrain}: {
		script: "export_marketbrain_csv.py",
		args:   positionalArgs,
	},
	{PDF, SectionMarketBrain}: {
		script:      "export_pdf_allium.py",
		acceptChart: true,
		args:        positionalArgs,
	},
}

// disabled holds pairs that are known but deliberately switched off.
var disabled = map[workerKey]bool{
	{PDF, SectionBinancePolar}: true,
}

// selectWorker resolves the worker for a job, distinguishing a disabled pair
// from one that was never wired.
func selectWorker(job Job) (workerSpec, error) {
	key := workerKey{job.Kind, job.Section}
	if disabled[key] {
		return workerSpec{}, ErrDisabled
	}
	spec, ok := workers[key]
	if !ok {
		return workerSpec{}, fmt.Errorf("%w: %s/%s", ErrUnsupported, job.Kind, job.Section)
	}
	return spec, nil
}
