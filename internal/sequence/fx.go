package sequence

import (
	"github.com/smallbiznis/erpcore/internal/sequence/lock"
	"github.com/smallbiznis/erpcore/internal/sequence/pattern"
	"github.com/smallbiznis/erpcore/internal/sequence/repository"
	"github.com/smallbiznis/erpcore/internal/sequence/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	lock.Module,
	fx.Provide(newRegistry),
	fx.Provide(repository.ProvideSequenceRepository),
	fx.Provide(repository.ProvideLogRepository),
	fx.Provide(repository.NewCounterStore),
	fx.Provide(service.New),
)

func newRegistry() (*pattern.Registry, error) {
	return pattern.NewRegistry(pattern.NewDepartmentVariable(), pattern.NewProjectCodeVariable())
}
