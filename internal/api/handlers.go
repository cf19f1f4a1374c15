package api

import (
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Solarigin/Like-Gallery/internal/config"
	"github.com/Solarigin/Like-Gallery/internal/download"
	"github.com/Solarigin/Like-Gallery/internal/gallery"
	"github.com/Solarigin/Like-Gallery/internal/store"
)

func downloadPolicyFrom(cfg config.Config) download.Policy {
	return download.Policy{
		AllowedContentTypes: cfg.Download.AllowedContentTypes,
		MaxAttempts:         cfg.Download.MaxAttempts,
		Timeout:             time.Duration(cfg.Download.TimeoutSeconds) * time.Second,
		InitialBackoff:      time.Duration(cfg.RetryBackoff * float64(time.Second)),
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleImagesJSON(c *gin.Context) {
	cur := s.cfg.Get()
	data, err := gallery.ReadOrInit(cur.BaseDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "manifest unavailable"})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) handleListItems(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "40"))
	if pageSize < 1 {
		pageSize = 40
	}

	filter := store.ListFilter{
		Author: c.Query("author"),
		Query:  c.Query("q"),
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}

	rows, err := s.store.ListFiles(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	total, err := s.store.CountFiles(c.Request.Context(), store.ListFilter{Author: filter.Author, Query: filter.Query})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count failed"})
		return
	}

	items := make([]ItemView, 0, len(rows))
	for _, r := range rows {
		items = append(items, ItemView{
			Path:   r.RelativePath,
			Folder: r.FolderName,
			Mtime:  r.Mtime.Unix(),
			PostID: r.PostID,
			Source: r.SourceURL,
		})
	}

	c.JSON(http.StatusOK, ItemsResponse{Page: page, PageSize: pageSize, Total: total, Items: items})
}

// handleStaticFile serves a file under base_dir with a traversal guard
// (spec.md §4.8, §6).
func (s *Server) handleStaticFile(c *gin.Context) {
	rel := strings.TrimPrefix(c.Param("filepath"), "/")
	if rel == "" || rel == "images.json" || rel == "healthz" || rel == "metrics" {
		c.Status(http.StatusNotFound)
		return
	}

	cur := s.cfg.Get()
	base, err := filepath.Abs(cur.BaseDir)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	target, err := filepath.Abs(filepath.Join(base, rel))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	if target != base && !strings.HasPrefix(target, base+string(filepath.Separator)) {
		c.Status(http.StatusNotFound)
		return
	}

	c.File(target)
}

// handleSave implements spec.md §4.7's per-request orchestration of
// C4 (folder/index allocation), C3 (download), C2 (metadata), and C5
// (index refresh).
func (s *Server) handleSave(c *gin.Context) {
	start := time.Now()
	defer func() { saveDuration.Observe(time.Since(start).Seconds()) }()

	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		saveRequestsTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := requestValidate.Struct(req); err != nil {
		saveRequestsTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, raw := range req.Images {
		u, err := url.ParseRequestURI(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			saveRequestsTotal.WithLabelValues("invalid").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "image url must be absolute http(s): " + raw})
			return
		}
	}

	folderName, folderPath, err := s.naming.ResolveAuthorFolder(req.Author)
	if err != nil {
		saveRequestsTotal.WithLabelValues("storage_failed").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve author folder failed"})
		return
	}

	exts := make([]string, len(req.Images))
	for i, raw := range req.Images {
		exts[i] = extensionFromURL(raw)
	}
	_, paths, err := s.naming.ReserveIndices(folderName, folderPath, len(req.Images), exts)
	if err != nil {
		saveRequestsTotal.WithLabelValues("storage_failed").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reserve indices failed"})
		return
	}

	cur := s.cfg.Get()
	policy := downloadPolicyFrom(cur)

	resp := SaveResponse{OK: true, Saved: []string{}, Duplicates: []string{}}
	ctx := c.Request.Context()

	err = s.store.InTransaction(ctx, func(tx *store.Tx) error {
		itemID, itemErr := tx.CreateItem(ctx, req.Author, req.PostID, req.Source)
		if itemErr != nil {
			return itemErr
		}

		for i, imgURL := range req.Images {
			dest := paths[i]
			result, dlErr := s.dl.Download(ctx, imgURL, dest, policy)
			if dlErr != nil {
				saveImagesTotal.WithLabelValues("failed").Inc()
				resp.Failed = append(resp.Failed, FailedURL{URL: imgURL, Reason: dlErr.Error()})
				continue
			}

			assetID, wasNew, upsertErr := tx.UpsertAssetByHash(ctx, result.ContentHash, exts[i], result.ByteLength)
			if upsertErr != nil {
				return upsertErr
			}

			relPath := filepath.ToSlash(filepath.Join(folderName, filepath.Base(dest)))
			if _, insertErr := tx.InsertFile(ctx, assetID, itemID, relPath, folderName, time.Now()); insertErr != nil {
				return insertErr
			}

			if wasNew {
				saveImagesTotal.WithLabelValues("saved").Inc()
				resp.Saved = append(resp.Saved, relPath)
			} else {
				saveImagesTotal.WithLabelValues("duplicate").Inc()
				resp.Duplicates = append(resp.Duplicates, relPath)
			}
		}
		return nil
	})
	if err != nil {
		saveRequestsTotal.WithLabelValues("storage_failed").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save transaction failed"})
		return
	}

	if rebuildErr := s.indexer.Rebuild(ctx, s.store, cur.BaseDir); rebuildErr != nil {
		s.log.Warn("save: rebuild index failed", "err", rebuildErr)
	}

	saveRequestsTotal.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, resp)
}

func extensionFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "jpg"
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(u.Path), "."))
	if ext == "" {
		return "jpg"
	}
	return ext
}
