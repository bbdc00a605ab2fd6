package manufacturing

import (
	"github.com/smallbiznis/erpcore/internal/manufacturing/report"
	"github.com/smallbiznis/erpcore/internal/manufacturing/repository"
	"github.com/smallbiznis/erpcore/internal/manufacturing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("manufacturing",
	fx.Provide(repository.Provide),
	fx.Provide(report.New),
	fx.Provide(service.New),
)
