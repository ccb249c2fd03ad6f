package process

import "github.com/nanocl-io/nanocld/internal/nerr"

var autoRemoveErr = nerr.BadRequest("using auto_remove for a cargo is not allowed, consider using a job instead")
