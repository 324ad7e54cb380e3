package credentials

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/fiware/ocpi-core/envelope"
	"github.com/fiware/ocpi-core/model"
)

func (h *Handler) GetVersions(c *gin.Context) {
	versions := make([]model.Version, 0, len(SupportedVersions))
	for _, version := range SupportedVersions {
		versions = append(versions, model.Version{Version: version, URL: h.platform.VersionURL(version)})
	}
	envelope.Success(c, versions)
}

func (h *Handler) GetVersionDetails(c *gin.Context) {
	version := model.VersionNumber(c.Param("version"))
	if !isSupported(version) {
		logger.Debugf("Requested details of unsupported version %s.", version)
		envelope.Error(c, model.NotFound(fmt.Sprintf("Version %s is not supported.", version)))
		return
	}
	envelope.Success(c, model.VersionDetails{Version: version, Endpoints: h.platform.Endpoints(version)})
}
