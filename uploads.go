package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"bitbucket.org/mmdatafocus/maintenance_backend/models"
	"bitbucket.org/mmdatafocus/maintenance_backend/utils"
	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxUploadSizeBytes int64 = 5 * 1024 * 1024

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var attachmentMimeTypes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"text/plain": true,
}

func extensionFromMimeType(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	default:
		return ""
	}
}

// readUploadedFile pulls one multipart file out of the request, enforcing
// the size limit and an allowed mime-type set.
func readUploadedFile(c *gin.Context, field string, allowed map[string]bool) ([]byte, string, string, bool) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " file is required"})
		return nil, "", "", false
	}
	if fileHeader.Size > maxUploadSizeBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
		return nil, "", "", false
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !allowed[contentType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
		return nil, "", "", false
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read file"})
		return nil, "", "", false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
	if err != nil || int64(len(data)) > maxUploadSizeBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
		return nil, "", "", false
	}
	return data, contentType, fileHeader.Filename, true
}

// storeObject writes the bytes to the configured storage provider and
// returns the stored object key.
func storeObject(ctx context.Context, objectKey, contentType string, data []byte) error {
	if utils.GetStorageProvider() == utils.StorageProviderGCS {
		return utils.SaveFileToGCS(ctx, objectKey, contentType, data)
	}

	fullPath := filepath.Join(utils.GetLocalStorageDir(), filepath.FromSlash(objectKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(fullPath, data, 0o644)
}

func removeObject(ctx context.Context, objectKey string) error {
	if utils.GetStorageProvider() == utils.StorageProviderGCS {
		return utils.DeleteFileFromGCS(ctx, objectKey)
	}
	err := os.Remove(filepath.Join(utils.GetLocalStorageDir(), filepath.FromSlash(objectKey)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// storeImageWithThumbnail stores the original and a 200px-wide thumbnail
// next to it under thumbnails/.
func storeImageWithThumbnail(ctx context.Context, objectKey, contentType string, data []byte) error {
	if err := storeObject(ctx, objectKey, contentType, data); err != nil {
		return err
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	thumbnail := imaging.Resize(img, 200, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return err
	}
	thumbnailKey := path.Join(path.Dir(objectKey), "thumbnails", path.Base(objectKey))
	return storeObject(ctx, thumbnailKey, "image/jpeg", buf.Bytes())
}

// removeImageWithThumbnail drops both the original and its thumbnail.
func removeImageWithThumbnail(ctx context.Context, objectKey string) error {
	thumbnailKey := path.Join(path.Dir(objectKey), "thumbnails", path.Base(objectKey))
	if err := removeObject(ctx, thumbnailKey); err != nil {
		return err
	}
	return removeObject(ctx, objectKey)
}

func uploadPartImageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid part id"})
			return
		}
		ctx := c.Request.Context()

		part, err := models.GetPartById(ctx, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "part not found"})
			return
		}

		data, contentType, fileName, ok := readUploadedFile(c, "image", imageMimeTypes)
		if !ok {
			return
		}

		ext := strings.ToLower(filepath.Ext(fileName))
		if ext == "" {
			ext = extensionFromMimeType(contentType)
		}
		objectKey := path.Join("parts", uuid.New().String()+ext)

		if err := storeImageWithThumbnail(ctx, objectKey, contentType, data); err != nil {
			config.LogError(config.GetLogger(), "uploads", "uploadPartImageHandler", "store image", objectKey, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store image"})
			return
		}

		oldPath := part.ImagePath
		if err := config.GetDB().WithContext(ctx).Model(part).Update("image_path", objectKey).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update part"})
			return
		}
		if oldPath != nil && *oldPath != "" {
			if err := removeImageWithThumbnail(ctx, *oldPath); err != nil {
				config.LogError(config.GetLogger(), "uploads", "uploadPartImageHandler", "remove old image", *oldPath, err)
			}
		}

		c.JSON(http.StatusOK, gin.H{"image_path": objectKey})
	}
}

func deletePartImageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid part id"})
			return
		}
		ctx := c.Request.Context()

		part, err := models.GetPartById(ctx, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "part not found"})
			return
		}
		if part.ImagePath == nil || *part.ImagePath == "" {
			c.Status(http.StatusNoContent)
			return
		}

		oldPath := *part.ImagePath
		if err := config.GetDB().WithContext(ctx).Model(part).Update("image_path", nil).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update part"})
			return
		}
		if err := removeImageWithThumbnail(ctx, oldPath); err != nil {
			config.LogError(config.GetLogger(), "uploads", "deletePartImageHandler", "remove image", oldPath, err)
		}
		c.Status(http.StatusNoContent)
	}
}

func uploadEquipmentImageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid equipment id"})
			return
		}
		ctx := c.Request.Context()

		equipment, err := models.GetEquipmentById(ctx, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "equipment not found"})
			return
		}

		data, contentType, fileName, ok := readUploadedFile(c, "image", imageMimeTypes)
		if !ok {
			return
		}

		ext := strings.ToLower(filepath.Ext(fileName))
		if ext == "" {
			ext = extensionFromMimeType(contentType)
		}
		objectKey := path.Join("equipments", uuid.New().String()+ext)

		if err := storeImageWithThumbnail(ctx, objectKey, contentType, data); err != nil {
			config.LogError(config.GetLogger(), "uploads", "uploadEquipmentImageHandler", "store image", objectKey, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store image"})
			return
		}

		oldPath := equipment.ImagePath
		if err := config.GetDB().WithContext(ctx).Model(equipment).Update("image_path", objectKey).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update equipment"})
			return
		}
		if oldPath != nil && *oldPath != "" {
			if err := removeImageWithThumbnail(ctx, *oldPath); err != nil {
				config.LogError(config.GetLogger(), "uploads", "uploadEquipmentImageHandler", "remove old image", *oldPath, err)
			}
		}

		c.JSON(http.StatusOK, gin.H{"image_path": objectKey})
	}
}

func listWorkAttachmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid work id"})
			return
		}
		attachments, err := models.ListWorkAttachments(c.Request.Context(), workId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load attachments"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"attachments": attachments})
	}
}

func uploadWorkAttachmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid work id"})
			return
		}
		ctx := c.Request.Context()

		if _, err := models.GetWorkById(ctx, workId); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "work not found"})
			return
		}

		data, contentType, fileName, ok := readUploadedFile(c, "file", attachmentMimeTypes)
		if !ok {
			return
		}

		ext := strings.ToLower(filepath.Ext(fileName))
		if ext == "" {
			ext = extensionFromMimeType(contentType)
		}
		objectKey := path.Join("works", strconv.Itoa(workId), uuid.New().String()+ext)

		if err := storeObject(ctx, objectKey, contentType, data); err != nil {
			config.LogError(config.GetLogger(), "uploads", "uploadWorkAttachmentHandler", "store file", objectKey, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store file"})
			return
		}

		var uploadedBy *int
		if id, ok := utils.GetUserIdFromContext(ctx); ok {
			uploadedBy = &id
		}
		attachment := models.WorkAttachment{
			WorkId:       workId,
			FileName:     fileName,
			FilePath:     objectKey,
			ContentType:  contentType,
			FileSize:     int64(len(data)),
			UploadedById: uploadedBy,
		}
		if err := config.GetDB().WithContext(ctx).Create(&attachment).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save attachment"})
			return
		}
		recordActivity(c, workId, "attachment_added", &attachment.FileName)
		c.JSON(http.StatusCreated, gin.H{"attachment": attachment})
	}
}

func removeWorkAttachmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid work id"})
			return
		}
		attachmentId, err := strconv.Atoi(c.Param("attachmentId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attachment id"})
			return
		}
		ctx := c.Request.Context()

		attachment, err := models.GetWorkAttachmentById(ctx, attachmentId)
		if err != nil || attachment.WorkId != workId {
			c.JSON(http.StatusNotFound, gin.H{"error": "attachment not found"})
			return
		}

		if err := config.GetDB().WithContext(ctx).Delete(&models.WorkAttachment{}, attachmentId).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete attachment"})
			return
		}
		if err := removeObject(ctx, attachment.FilePath); err != nil {
			config.LogError(config.GetLogger(), "uploads", "removeWorkAttachmentHandler", "remove file", attachment.FilePath, err)
		}
		c.Status(http.StatusNoContent)
	}
}
