package conservation

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// StockRecord is one stock row as the Conservation API returns it.
// Numeric ids arrive as either numbers or strings depending on the
// endpoint, so they stay json.Number until a caller needs a key.
type StockRecord struct {
	Id             json.Number      `json:"id"`
	Name           string           `json:"name"`
	SName          string           `json:"s_name"`
	StockNo        string           `json:"stock_no"`
	JanCode        string           `json:"jan_code"`
	Price          *decimal.Decimal `json:"price"`
	ImgPath        string           `json:"img_path"`
	StockStorages  []StorageSlot    `json:"stock_storages"`
	StockSuppliers []StockSupplier  `json:"stock_suppliers"`
	StockImages    []StockImage     `json:"stock_images"`
}

// RemoteUser is one account row from the central user directory.
type RemoteUser struct {
	Id    json.Number `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
}

type StorageSlot struct {
	Id       int              `json:"id"`
	Name     string           `json:"name"`
	Address  string           `json:"address"`
	Quantity *decimal.Decimal `json:"quantity"`
}

type StockSupplier struct {
	MainFlg  int          `json:"main_flg"`
	Supplier *SupplierRef `json:"supplier"`
}

type SupplierRef struct {
	Name string `json:"name"`
}

type StockImage struct {
	Path     string `json:"path"`
	ImgPath  string `json:"img_path"`
	FilePath string `json:"file_path"`
	Url      string `json:"url"`
}

// FirstPath returns whichever path field the image row carries.
func (img StockImage) FirstPath() string {
	for _, p := range []string{img.Path, img.ImgPath, img.FilePath, img.Url} {
		if p != "" {
			return p
		}
	}
	return ""
}

// Direction of a batch quantity adjustment.
type Direction string

const (
	DirectionConsume Direction = "consume"
	DirectionReturn  Direction = "return"
)

// AdjustmentEntry is one line of a batch adjustment request.
type AdjustmentEntry struct {
	StockStorageId int             `json:"stock_storage_id"`
	Quantity       decimal.Decimal `json:"quantity"`
}

// EntryResult is the per-entry outcome the API reports on a 207 response.
type EntryResult struct {
	StockStorageId int    `json:"stock_storage_id"`
	Success        *bool  `json:"success"`
	Message        string `json:"message"`
}

type BatchStatus string

const (
	BatchStatusSucceeded BatchStatus = "succeeded"
	BatchStatusPartial   BatchStatus = "partial"
	BatchStatusFailed    BatchStatus = "failed"
)

// BatchAdjustmentResult is what a completed batch call produced. A nil
// error with BatchStatusFailed means the API answered and rejected the
// batch, as opposed to the call never getting through.
type BatchAdjustmentResult struct {
	Status  BatchStatus
	Results []EntryResult
}
