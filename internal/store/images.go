// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/northbound/archivist/internal/archiveerr"
)

type ImageAnalysis struct {
	ID                string
	FilePath          string
	FileHash          string
	Source            string
	Description       string
	Categories        []string
	Objects           []string
	Scene             string
	Mood              string
	ModelUsed         string
	Confidence        float64
	ProcessingTimeMs  int
	EmbeddingID       string
}

// UpsertImageAnalysis stores or replaces the analysis for filePath, unique
// per path.
func (s *Store) UpsertImageAnalysis(ctx context.Context, img ImageAnalysis) error {
	categories, _ := json.Marshal(img.Categories)
	objects, _ := json.Marshal(img.Objects)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO image_analyses (id, file_path, file_hash, source, description, categories, objects, scene, mood, model_used, confidence, processing_time_ms, embedding_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			file_hash=excluded.file_hash, description=excluded.description, categories=excluded.categories,
			objects=excluded.objects, scene=excluded.scene, mood=excluded.mood, model_used=excluded.model_used,
			confidence=excluded.confidence, processing_time_ms=excluded.processing_time_ms, embedding_id=excluded.embedding_id`,
		img.ID, img.FilePath, img.FileHash, img.Source, img.Description, categories, objects, img.Scene, img.Mood, img.ModelUsed, img.Confidence, img.ProcessingTimeMs, img.EmbeddingID,
	)
	if err != nil {
		return wrapWriteErr("store.UpsertImageAnalysis", err)
	}

	// On a file_path conflict the stored row keeps its original id;
	// resolve it before syncing the FTS shadow row.
	var rowID string
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM image_analyses WHERE file_path = ?`, img.FilePath).Scan(&rowID); err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.UpsertImageAnalysis", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM images_fts WHERE id = ?`, rowID); err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.UpsertImageAnalysis", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO images_fts (id, description) VALUES (?, ?)`, rowID, img.Description); err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.UpsertImageAnalysis", err)
	}
	return nil
}

func (s *Store) GetImageAnalysisByPath(ctx context.Context, filePath string) (ImageAnalysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_path, file_hash, source, description, categories, objects, scene, mood, model_used, confidence, processing_time_ms, embedding_id
		FROM image_analyses WHERE file_path = ?`, filePath)

	var img ImageAnalysis
	var fileHash, source, scene, mood, modelUsed, embeddingID sql.NullString
	var categories, objects []byte

	err := row.Scan(&img.ID, &img.FilePath, &fileHash, &source, &img.Description, &categories, &objects, &scene, &mood, &modelUsed, &img.Confidence, &img.ProcessingTimeMs, &embeddingID)
	if err == sql.ErrNoRows {
		return ImageAnalysis{}, archiveerr.New(archiveerr.KindNotFound, "store.GetImageAnalysisByPath", fmt.Errorf("image %s", filePath))
	}
	if err != nil {
		return ImageAnalysis{}, archiveerr.New(archiveerr.KindBackend, "store.GetImageAnalysisByPath", err)
	}

	img.FileHash = fileHash.String
	img.Source = source.String
	img.Scene = scene.String
	img.Mood = mood.String
	img.ModelUsed = modelUsed.String
	img.EmbeddingID = embeddingID.String
	json.Unmarshal(categories, &img.Categories)
	json.Unmarshal(objects, &img.Objects)
	return img, nil
}

func (s *Store) SetImageEmbedding(ctx context.Context, imageID, embeddingID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE image_analyses SET embedding_id = ? WHERE id = ?`, embeddingID, imageID)
	if err != nil {
		return archiveerr.New(archiveerr.KindBackend, "store.SetImageEmbedding", err)
	}
	return checkRowAffected(res, "store.SetImageEmbedding", imageID)
}

type SearchImageHit struct {
	ImageAnalysis
	Similarity float32
}

func (s *Store) SearchImagesByDescriptionVector(ctx context.Context, queryVec []float32, limit int) ([]SearchImageHit, error) {
	if s.Vector == nil {
		return nil, archiveerr.New(archiveerr.KindInvalid, "store.SearchImagesByDescriptionVector", nil)
	}
	matches, err := s.Vector.Search(ctx, GranularityImageDescription, queryVec, limit)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "store.SearchImagesByDescriptionVector", err)
	}

	var hits []SearchImageHit
	for _, m := range matches {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, file_path, file_hash, source, description, categories, objects, scene, mood, model_used, confidence, processing_time_ms, embedding_id
			FROM image_analyses WHERE embedding_id = ?`, m.ID)
		var img ImageAnalysis
		var fileHash, source, scene, mood, modelUsed, embeddingID sql.NullString
		var categories, objects []byte
		if err := row.Scan(&img.ID, &img.FilePath, &fileHash, &source, &img.Description, &categories, &objects, &scene, &mood, &modelUsed, &img.Confidence, &img.ProcessingTimeMs, &embeddingID); err != nil {
			continue
		}
		img.FileHash = fileHash.String
		img.Source = source.String
		img.Scene = scene.String
		img.Mood = mood.String
		img.ModelUsed = modelUsed.String
		img.EmbeddingID = embeddingID.String
		json.Unmarshal(categories, &img.Categories)
		json.Unmarshal(objects, &img.Objects)
		hits = append(hits, SearchImageHit{ImageAnalysis: img, Similarity: m.Score})
	}
	return hits, nil
}

func (s *Store) SearchImagesFTS(ctx context.Context, q string, limit int, source string) ([]ImageAnalysis, error) {
	query := `SELECT image_analyses.id, file_path, file_hash, image_analyses.source, image_analyses.description, categories, objects, scene, mood, model_used, confidence, processing_time_ms, embedding_id
		FROM images_fts JOIN image_analyses ON image_analyses.id = images_fts.id
		WHERE images_fts MATCH ?`
	args := []interface{}{q}
	if source != "" {
		query += ` AND image_analyses.source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY bm25(images_fts) LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindBackend, "store.SearchImagesFTS", err)
	}
	defer rows.Close()

	var out []ImageAnalysis
	for rows.Next() {
		var img ImageAnalysis
		var fileHash, imgSource, scene, mood, modelUsed, embeddingID sql.NullString
		var categories, objects []byte
		if err := rows.Scan(&img.ID, &img.FilePath, &fileHash, &imgSource, &img.Description, &categories, &objects, &scene, &mood, &modelUsed, &img.Confidence, &img.ProcessingTimeMs, &embeddingID); err != nil {
			return nil, archiveerr.New(archiveerr.KindBackend, "store.SearchImagesFTS", err)
		}
		img.FileHash = fileHash.String
		img.Source = imgSource.String
		img.Scene = scene.String
		img.Mood = mood.String
		img.ModelUsed = modelUsed.String
		img.EmbeddingID = embeddingID.String
		json.Unmarshal(categories, &img.Categories)
		json.Unmarshal(objects, &img.Objects)
		out = append(out, img)
	}
	return out, rows.Err()
}
