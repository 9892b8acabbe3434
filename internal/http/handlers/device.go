package handlers

import (
	"errors"
	"net/http"

	"booth/internal/device"
)

// RetryDevice walks the acquisition ladder again after a camera failure and
// swaps the machine onto the new stream. Failures return 503 with the
// localized message for the kiosk's blocking screen.
func (a *App) RetryDevice(w http.ResponseWriter, r *http.Request) {
	stream, err := a.Device.Retry(r.Context())
	if err != nil {
		var devErr *device.DeviceError
		if errors.As(err, &devErr) {
			a.json(w, http.StatusServiceUnavailable, map[string]string{
				"error": devErr.Message(a.Locale),
				"cause": string(devErr.Cause),
			})
			return
		}
		a.Logger.Error().Err(err).Msg("http: device retry failed")
		a.error(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	a.Capture.SetStream(stream)
	width, height := stream.Dimensions()
	a.json(w, http.StatusOK, map[string]any{"width": width, "height": height})
}
