package conservation

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"bitbucket.org/mmdatafocus/maintenance_backend/models"
	"github.com/sirupsen/logrus"
)

// stockFetcher is the slice of the API client the resolver needs.
type stockFetcher interface {
	FetchStocks(ctx context.Context, ids []string) (map[string]StockRecord, error)
}

// NameOverride is one user's preferred naming for a part.
type NameOverride struct {
	DisplayName  *string
	DisplaySName *string
}

type overrideLoader func(ctx context.Context, userId int, partIds []int) (map[int]NameOverride, error)

// ResolvedPart is a part with its presentation name settled for one
// user. The provenance fields expose which layer supplied each piece so
// edit screens can show what is overridden.
type ResolvedPart struct {
	models.Part
	DisplayName string `json:"display_name"`

	UserDisplayName  *string `json:"user_display_name"`
	UserDisplaySName *string `json:"user_display_s_name"`
	ApiName          *string `json:"api_name"`
	ApiSName         *string `json:"api_s_name"`
}

// DisplayNameService resolves part names for display. Per part, a
// non-blank per-user override wins, then the remote record's naming,
// then the locally stored name. A remote record that exists but carries
// blank names still shadows the local name.
type DisplayNameService struct {
	fetcher   stockFetcher
	overrides overrideLoader
	logger    *logrus.Logger
}

func NewDisplayNameService(fetcher stockFetcher) *DisplayNameService {
	return &DisplayNameService{
		fetcher:   fetcher,
		overrides: loadOverridesFromDB,
		logger:    config.GetLogger(),
	}
}

// ResolveParts resolves every part in input order, one batched remote
// lookup for the whole slice. When the remote side is unreachable the
// resolution degrades to overrides and local names instead of failing.
func (s *DisplayNameService) ResolveParts(ctx context.Context, userId int, parts []models.Part) ([]ResolvedPart, error) {
	externalIds := make([]string, 0, len(parts))
	partIds := make([]int, 0, len(parts))
	for _, part := range parts {
		partIds = append(partIds, part.ID)
		if part.ExternalId != nil && strings.TrimSpace(*part.ExternalId) != "" {
			externalIds = append(externalIds, *part.ExternalId)
		}
	}

	records := map[string]StockRecord{}
	if len(externalIds) > 0 {
		fetched, err := s.fetcher.FetchStocks(ctx, externalIds)
		if err != nil {
			config.LogError(s.logger, "conservation", "ResolveParts", "fetch stocks", externalIds, err)
		} else {
			records = fetched
		}
	}

	overrides := map[int]NameOverride{}
	if userId != 0 && len(partIds) > 0 {
		loaded, err := s.overrides(ctx, userId, partIds)
		if err != nil {
			config.LogError(s.logger, "conservation", "ResolveParts", "load overrides", userId, err)
		} else {
			overrides = loaded
		}
	}

	resolved := make([]ResolvedPart, 0, len(parts))
	for _, part := range parts {
		resolved = append(resolved, s.resolveOne(part, records, overrides[part.ID]))
	}
	return resolved, nil
}

// ResolvePart is the single-part convenience over ResolveParts.
func (s *DisplayNameService) ResolvePart(ctx context.Context, userId int, part models.Part) (ResolvedPart, error) {
	resolved, err := s.ResolveParts(ctx, userId, []models.Part{part})
	if err != nil {
		return ResolvedPart{Part: part}, err
	}
	return resolved[0], nil
}

func (s *DisplayNameService) resolveOne(part models.Part, records map[string]StockRecord, override NameOverride) ResolvedPart {
	out := ResolvedPart{
		Part:             part,
		UserDisplayName:  override.DisplayName,
		UserDisplaySName: override.DisplaySName,
	}

	name := part.Name
	sName := ""

	if part.ExternalId != nil {
		if record, ok := records[strings.TrimSpace(*part.ExternalId)]; ok {
			name = record.Name
			sName = record.SName
			out.ApiName = &record.Name
			out.ApiSName = &record.SName
		}
	}

	if v := trimmed(override.DisplayName); v != "" {
		name = v
	}
	if v := trimmed(override.DisplaySName); v != "" {
		sName = v
	}

	out.DisplayName = buildDisplayString(name, sName)
	return out
}

func buildDisplayString(name, sName string) string {
	name = strings.TrimSpace(name)
	sName = strings.TrimSpace(sName)
	switch {
	case name != "" && sName != "":
		return name + " (" + sName + ")"
	case name != "":
		return name
	case sName != "":
		return sName
	default:
		return "—"
	}
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func loadOverridesFromDB(ctx context.Context, userId int, partIds []int) (map[int]NameOverride, error) {
	db := config.GetDB()
	var rows []models.PartUserDisplayName
	err := db.WithContext(ctx).
		Where("user_id = ? AND part_id IN ?", userId, partIds).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	overrides := make(map[int]NameOverride, len(rows))
	for _, row := range rows {
		overrides[row.PartId] = NameOverride{DisplayName: row.DisplayName, DisplaySName: row.DisplaySName}
	}
	return overrides, nil
}
