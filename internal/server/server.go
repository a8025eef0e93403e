// Package server exposes the verdict pipeline over HTTP.
package server

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/hyperifyio/newscheck/internal/predict"
)

//go:embed templates/*.html
var templateFS embed.FS

const indexTemplate = "index.html"

// Predictor runs one verdict request.
type Predictor interface {
	Run(ctx context.Context, req predict.Request) (predict.Outcome, error)
}

// Options tunes the HTTP surface.
type Options struct {
	// TemplatesDir overrides the embedded page template when set.
	TemplatesDir string
	// MaxRequestBytes caps request bodies. Zero means 1 MiB.
	MaxRequestBytes int64
}

type handler struct {
	predictor Predictor
}

// New builds the gin engine: the form page at / and /predict, a JSON API
// under /api/v1 and a health probe.
func New(p Predictor, opts Options) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), limitBody(opts.MaxRequestBytes))

	if opts.TemplatesDir != "" {
		r.LoadHTMLGlob(filepath.Join(opts.TemplatesDir, "*.html"))
	} else {
		tmpl, err := template.ParseFS(templateFS, "templates/*.html")
		if err != nil {
			return nil, err
		}
		r.SetHTMLTemplate(tmpl)
	}

	h := &handler{predictor: p}
	r.GET("/", h.indexPage)
	r.POST("/predict", h.predictForm)
	r.GET("/health", h.health)

	api := r.Group("/api/v1")
	{
		api.POST("/predict", h.predictJSON)
	}
	return r, nil
}

func (h *handler) indexPage(c *gin.Context) {
	c.HTML(http.StatusOK, indexTemplate, pageData(predict.Response{}))
}

type predictForm struct {
	InputType string `form:"inputType"`
	URL       string `form:"url"`
	NewsText  string `form:"news_text"`
}

// predictForm always answers 200 with the page; failures are shown inline.
func (h *handler) predictForm(c *gin.Context) {
	var f predictForm
	if err := c.ShouldBind(&f); err != nil {
		c.HTML(http.StatusOK, indexTemplate, pageData(predict.Response{Error: "Invalid form submission."}))
		return
	}
	out, err := h.predictor.Run(c.Request.Context(), predict.Request{InputType: f.InputType, URL: f.URL, NewsText: f.NewsText})
	c.HTML(http.StatusOK, indexTemplate, pageData(predict.Render(out, err)))
}

func pageData(r predict.Response) gin.H {
	selected := r.SelectedInput
	if selected == "" {
		selected = predict.InputText
	}
	return gin.H{
		"result":         r.Result,
		"url":            r.URL,
		"title":          r.Title,
		"news_text":      r.NewsText,
		"selected_input": selected,
		"error":          r.Error,
	}
}

type apiRequest struct {
	InputType string `json:"input_type"`
	URL       string `json:"url"`
	NewsText  string `json:"news_text"`
}

func (h *handler) predictJSON(c *gin.Context) {
	var req apiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, predict.Response{Error: "Invalid JSON body."})
		return
	}
	out, err := h.predictor.Run(c.Request.Context(), predict.Request{InputType: req.InputType, URL: req.URL, NewsText: req.NewsText})
	c.JSON(statusFor(err), predict.Render(out, err))
}

func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch predict.KindOf(err) {
	case predict.KindValidation:
		return http.StatusBadRequest
	case predict.KindExtraction:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "newscheck"})
}
