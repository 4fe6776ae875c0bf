package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mbolis/survey-kiosk/app"
	"github.com/mbolis/survey-kiosk/kiosk"
	"github.com/mbolis/survey-kiosk/log"
)

const eventWriteTimeout = 5 * time.Second

// StatusEvents streams the kiosk status over a websocket: once on connect,
// then after every change. A slow client only gets the latest status.
func StatusEvents(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Debugf("events.accept: %v", err)
			return
		}
		defer conn.CloseNow()

		// client messages are ignored; the context ends when the client leaves
		ctx := conn.CloseRead(r.Context())

		updates := make(chan kiosk.Status, 1)
		unsubscribe := app.Kiosk.OnChange(func(s kiosk.Status) {
			for {
				select {
				case updates <- s:
					return
				default:
				}
				select {
				case <-updates:
				default:
				}
			}
		})
		defer unsubscribe()

		status, err := app.Kiosk.Status(ctx)
		if err != nil {
			log.Errorf("events.status: %v", err)
			conn.Close(websocket.StatusInternalError, "status unavailable")
			return
		}
		if err := writeStatus(ctx, conn, status); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case status := <-updates:
				if err := writeStatus(ctx, conn, status); err != nil {
					log.Debugf("events.write: %v", err)
					return
				}
			}
		}
	}
}

func writeStatus(ctx context.Context, conn *websocket.Conn, status kiosk.Status) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, status)
}
