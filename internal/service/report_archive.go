package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rl-arena/duel-arena-backend/internal/models"
	"github.com/rl-arena/duel-arena-backend/pkg/storage"
)

// ReportArchive 매치 보고서를 객체 저장소에 JSON 으로 보관
type ReportArchive struct {
	store  storage.Store
	prefix string
}

func NewReportArchive(store storage.Store, prefix string) *ReportArchive {
	if prefix == "" {
		prefix = "reports"
	}
	return &ReportArchive{store: store, prefix: prefix}
}

// Key reports/2006/01/02/<matchId>.json
func (a *ReportArchive) Key(report models.MatchReport) string {
	return fmt.Sprintf("%s/%s/%s.json", a.prefix, report.FinishedAt.UTC().Format("2006/01/02"), report.MatchID)
}

// ArchiveReport 보고서 업로드. 같은 키로 다시 올려도 내용은 같다
func (a *ReportArchive) ArchiveReport(ctx context.Context, report models.MatchReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := a.store.Put(ctx, a.Key(report), body, "application/json"); err != nil {
		return fmt.Errorf("failed to archive report %s: %w", report.MatchID, err)
	}
	return nil
}

// LoadArchived 보관된 보고서 읽기
func (a *ReportArchive) LoadArchived(ctx context.Context, key string) (*models.MatchReport, error) {
	body, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var report models.MatchReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("failed to decode archived report: %w", err)
	}
	return &report, nil
}
