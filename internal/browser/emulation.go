package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bbox-cli/internal/config"
)

// emulateMobile applies the device metrics, touch support and user agent of a
// phone before the first navigation.
func emulateMobile(vp config.ViewportConfig, userAgent string, logger *zap.Logger) chromedp.Action {
	return chromedp.Tasks{
		setDeviceMetrics(vp, logger),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := emulation.SetTouchEmulationEnabled(true).WithMaxTouchPoints(5).Do(ctx); err != nil {
				logger.Error("Failed to enable touch emulation via CDP", zap.Error(err))
				return fmt.Errorf("emulation: failed to enable touch: %w", err)
			}
			return nil
		}),
		setUserAgent(userAgent, logger),
	}
}

func setDeviceMetrics(vp config.ViewportConfig, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		orientation := emulation.OrientationTypePortraitPrimary
		if vp.Width > vp.Height {
			orientation = emulation.OrientationTypeLandscapePrimary
		}
		err := emulation.SetDeviceMetricsOverride(vp.Width, vp.Height, vp.DeviceScaleFactor, vp.Mobile).
			WithScreenOrientation(&emulation.ScreenOrientation{Type: orientation}).
			Do(ctx)
		if err != nil {
			logger.Error("Failed to set device metrics override via CDP", zap.Error(err))
			return fmt.Errorf("emulation: failed to set device metrics: %w", err)
		}
		return nil
	})
}

func setUserAgent(userAgent string, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if userAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
			logger.Error("Failed to set user agent override via CDP", zap.Error(err))
			return fmt.Errorf("emulation: failed to set user agent: %w", err)
		}
		return nil
	})
}
