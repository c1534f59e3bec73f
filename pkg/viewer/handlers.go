package viewer

import (
	"html/template"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { margin: 0; background: #fff; display: flex; justify-content: center; }
img { max-width: 100vw; max-height: 100vh; }
</style>
</head>
<body>
<img id="figure" src="/figure.png" alt="{{.Title}}">
<script>
(function () {
  var img = document.getElementById("figure");
  var ws = new WebSocket("ws://" + location.host + "/ws/figure");
  ws.binaryType = "blob";
  ws.onmessage = function (ev) {
    var old = img.src;
    img.src = URL.createObjectURL(ev.data);
    if (old.startsWith("blob:")) { URL.revokeObjectURL(old); }
  };
})();
</script>
</body>
</html>
`))

// handleIndex serves the viewer page
func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return indexTemplate.Execute(c, struct{ Title string }{s.cfg.Title})
}

// handleFigure returns the latest figure
func (s *Server) handleFigure(c *fiber.Ctx) error {
	s.mu.RLock()
	png := s.figure
	s.mu.RUnlock()

	if png == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no figure published yet",
		})
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Type("png")
	return c.Send(png)
}

// handleStatus reports what the viewer is serving
func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(fiber.Map{
		"title":   s.cfg.Title,
		"figures": s.seq,
		"bytes":   len(s.figure),
		"clients": s.hub.ClientCount(),
		"dropped": s.hub.Dropped(),
	})
}

// handleFigureWS streams figures to a page
func (s *Server) handleFigureWS(c *websocket.Conn) {
	s.hub.Serve(c)
}
