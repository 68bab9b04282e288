package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/v4lcap/internal/api/models"
	"github.com/smazurov/v4lcap/internal/metrics"
	"github.com/smazurov/v4lcap/pkg/linuxav/camera"
	"github.com/smazurov/v4lcap/pkg/linuxav/v4l2"
)

func (s *Server) registerCaptureRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "capture-status",
		Method:      http.MethodGet,
		Path:        "/api/capture",
		Summary:     "Capture Status",
		Description: "Report the capture session state, negotiated format and counters",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.CaptureStatusResponse, error) {
		st := s.options.Capture.Status()

		var pixelFormat string
		if st.Format.PixelFormat != 0 {
			pixelFormat = v4l2.FormatFourCC(st.Format.PixelFormat)
		}

		resp := &models.CaptureStatusResponse{
			Body: models.CaptureStatusData{
				Running:    st.Running,
				DevicePath: st.DevicePath,
				State:      st.State,
				IOMethod:   st.IOMethod,
				Format: models.CaptureFormat{
					Width:       st.Format.Width,
					Height:      st.Format.Height,
					Stride:      st.Format.Stride,
					SizeImage:   st.Format.SizeImage,
					PixelFormat: pixelFormat,
				},
				Buffers:         st.Buffers,
				Frames:          st.Frames,
				NoFrames:        st.NoFrames,
				RequeueFailures: st.RequeueFailures,
				LostBuffers:     st.LostBuffers,
				FPS:             st.FPS,
				MeanLuma:        st.MeanLuma,
				LogSeverity:     st.LogSeverity,
				LastError:       st.LastError,
			},
		}
		if m := metrics.GetCaptureMetrics(st.DevicePath); m != nil {
			resp.Body.Errors = m.Errors
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "capture-log-level",
		Method:      http.MethodPut,
		Path:        "/api/capture/log-level",
		Summary:     "Set Capture Log Severity",
		Description: "Change the minimum severity the capture session logs. Applies immediately, including while streaming.",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(_ context.Context, input *models.LogSeverityRequest) (*models.LogSeverityResponse, error) {
		sev, err := camera.ParseSeverity(input.Body.Severity)
		if err != nil {
			return nil, huma.Error400BadRequest("Invalid severity", err)
		}
		s.options.Capture.SetLogSeverity(sev)
		s.logger.Info("Capture log severity changed", "severity", sev.String())

		return &models.LogSeverityResponse{
			Body: models.LogSeverityBody{Severity: sev.String()},
		}, nil
	})
}
