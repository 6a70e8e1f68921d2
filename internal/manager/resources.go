package manager

import (
	"context"
	"fmt"

	"github.com/hitoshi/inventory/internal/repository"
)

// NewDomainManager はドメイン用のManagerを生成する。
// ホスト（論理削除済みを含む）を1件でも持つドメインは削除できない。
func NewDomainManager(domains repository.DomainRepository, hosts repository.HostRepository) *Manager {
	guard := func(ctx context.Context, domainID string) (bool, error) {
		n, err := hosts.CountAll(ctx, domainID)
		if err != nil {
			return false, fmt.Errorf("ドメイン配下のホスト件数の取得に失敗しました: %w", err)
		}
		return n == 0, nil
	}
	return NewManager(domains, guard)
}

// HostManager はドメインごとのホスト用Managerを生成する。
type HostManager struct {
	hosts repository.HostRepository
}

// NewHostManager はHostManagerを生成する。
func NewHostManager(hosts repository.HostRepository) *HostManager {
	return &HostManager{hosts: hosts}
}

// In は指定ドメイン配下のホストを扱うManagerを返す。
// domainIDは解決済みの実在するドメインIDであること。
func (m *HostManager) In(domainID string) *Manager {
	return NewManager(repository.ScopeHosts(m.hosts, domainID), nil)
}
