package handlers

import (
	"context"
	"strings"

	"github.com/kavach/opsengine/internal/dispatcher"
	"github.com/kavach/opsengine/internal/parser"
	"github.com/kavach/opsengine/pkg/core"
)

// Feed commands.
const (
	CmdVehicleUpsert = ":VEHICLE:UPSERT:"
	CmdVehicleRemove = ":VEHICLE:REMOVE:"
	CmdWorkerAdd     = ":WORKER:ADD:"
	CmdWorkerEnd     = ":WORKER:END:"
	CmdHistoryAppend = ":HISTORY:APPEND:"
	CmdHistoryDelete = ":HISTORY:DELETE:"
	CmdHistoryClear  = ":HISTORY:CLEAR:"
	CmdPredict       = ":PREDICT:"
	CmdSiteStart     = ":SITE:START:"
	CmdSiteStop      = ":SITE:STOP:"
	CmdSiteRecompute = ":SITE:RECOMPUTE:"
)

// PredictResult is returned by the :PREDICT: command.
type PredictResult struct {
	Record     core.HistoryRecord `json:"record"`
	Prediction core.Prediction    `json:"prediction"`
}

// Register wires every feed command to the service. Commands for one site
// are applied one at a time so feed and REST writers cannot interleave.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	lane := dispatcher.Serialized()
	d.Register(CmdVehicleUpsert, s.handleVehicleUpsert, lane)
	d.Register(CmdVehicleRemove, s.handleVehicleRemove, lane)
	d.Register(CmdWorkerAdd, s.handleWorkerAdd, lane, dispatcher.Logged())
	d.Register(CmdWorkerEnd, s.handleWorkerEnd, lane, dispatcher.Logged())
	d.Register(CmdHistoryAppend, s.handleHistoryAppend, lane, dispatcher.Logged())
	d.Register(CmdHistoryDelete, s.handleHistoryDelete, lane, dispatcher.Logged())
	d.Register(CmdHistoryClear, s.handleHistoryClear, lane, dispatcher.Logged())
	d.Register(CmdPredict, s.handlePredict, lane, dispatcher.Logged())
	d.Register(CmdSiteStart, s.handleSiteStart, lane, dispatcher.Logged())
	d.Register(CmdSiteStop, s.handleSiteStop, lane, dispatcher.Logged())
	d.Register(CmdSiteRecompute, s.handleSiteRecompute, lane)
}

// siteOf prefers the event's site and falls back to the payload's mine_name.
func siteOf(e dispatcher.Event) (string, error) {
	site := strings.TrimSpace(e.Site)
	if site == "" && len(e.Payload) > 0 {
		site = parser.SiteOf(e.Payload)
	}
	if site == "" {
		return "", core.Invalid("site", "must not be empty")
	}
	return site, nil
}

func (s *Service) handleVehicleUpsert(_ context.Context, e dispatcher.Event) (any, error) {
	site, err := siteOf(e)
	if err != nil {
		return nil, err
	}
	v, err := s.deps.Parser.ParseVehicle(e.Payload)
	if err != nil {
		return nil, err
	}
	return v, s.UpsertVehicle(site, v)
}

func (s *Service) handleVehicleRemove(_ context.Context, e dispatcher.Event) (any, error) {
	site, err := siteOf(e)
	if err != nil {
		return nil, err
	}
	id, err := s.deps.Parser.ParseID(e.Payload)
	if err != nil {
		return nil, err
	}
	return id, s.RemoveVehicle(site, id)
}

func (s *Service) handleWorkerAdd(ctx context.Context, e dispatcher.Event) (any, error) {
	site, err := siteOf(e)
	if err != nil {
		return nil, err
	}
	w, err := s.deps.Parser.ParseWorker(e.Payload)
	if err != nil {
		return nil, err
	}
	return s.AddWorker(ctx, site, w)
}

func (s *Service) handleWorkerEnd(ctx context.Context, e dispatcher.Event) (any, error) {
	site, err := siteOf(e)
	if err != nil {
		return nil, err
	}
	id, err := s.deps.Parser.ParseID(e.Payload)
	if err != nil {
		return nil, err
	}
	return id, s.EndShift(ctx, site, id)
}

func (s *Service) handleHistoryAppend(ctx context.Context, e dispatcher.Event) (any, error) {
	site, err := siteOf(e)
	if err != nil {
		return nil, err
	}
	records, err := s.deps.Parser.ParseHistoryRecords(e.Payload)
	if err != nil {
		return nil, err
	}
	return records, s.AppendHistory(ctx, site, records...)
}

func (s *Service) handleHistoryDelete(ctx context.Context, e dispatcher.Event) (any, error) {
	site, err := siteOf(e)
	if err != nil {
		return nil, err
	}
	id, err := s.deps.Parser.ParseID(e.Payload)
	if err != nil {
		return nil, err
	}
	return id, s.DeleteHistory(ctx, site, id)
}

func (s *Service) handleHistoryClear(ctx context.Context, e dispatcher.Event) (any, error) {
	site, err := siteOf(e)
	if err != nil {
		return nil, err
	}
	n, err := s.ClearHistory(ctx, site)
	return map[string]int64{"deleted_count": n}, err
}

func (s *Service) handlePredict(ctx context.Context, e dispatcher.Event) (any, error) {
	site, err := siteOf(e)
	if err != nil {
		return nil, err
	}
	in, err := s.deps.Parser.ParseGeotechnical(e.Payload)
	if err != nil {
		return nil, err
	}
	r, p, err := s.Predict(ctx, site, in)
	if err != nil {
		return nil, err
	}
	return PredictResult{Record: r, Prediction: p}, nil
}

func (s *Service) handleSiteStart(ctx context.Context, e dispatcher.Event) (any, error) {
	site, err := siteOf(e)
	if err != nil {
		return nil, err
	}
	return site, s.StartSite(ctx, site)
}

func (s *Service) handleSiteStop(_ context.Context, e dispatcher.Event) (any, error) {
	site, err := siteOf(e)
	if err != nil {
		return nil, err
	}
	return site, s.StopSite(site)
}

func (s *Service) handleSiteRecompute(_ context.Context, e dispatcher.Event) (any, error) {
	site, err := siteOf(e)
	if err != nil {
		return nil, err
	}
	return site, s.Recompute(site)
}
