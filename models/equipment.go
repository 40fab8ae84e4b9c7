package models

import (
	"context"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"bitbucket.org/mmdatafocus/maintenance_backend/utils"
	"gorm.io/gorm"
)

type Equipment struct {
	ID            int        `gorm:"primary_key" json:"id"`
	ParentId      *int       `gorm:"index" json:"parent_id"`
	Name          string     `gorm:"size:255;not null" json:"name" binding:"required"`
	ModelNumber   *string    `gorm:"size:255" json:"model_number"`
	Status        string     `gorm:"size:50" json:"status"`
	InstalledAt   *time.Time `json:"installed_at"`
	Manufacturer  *string    `gorm:"size:255" json:"manufacturer"`
	VendorContact *string    `gorm:"type:text" json:"vendor_contact"`
	Note          *string    `gorm:"type:text" json:"note"`
	ImagePath     *string    `gorm:"size:255" json:"image_path"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Equipment) TableName() string {
	return "equipments"
}

// EquipmentOption is one row of the flattened hierarchy used by select boxes.
type EquipmentOption struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	DisplayLabel string `json:"display_label"`
	Depth        int    `json:"depth"`
}

func GetEquipmentById(ctx context.Context, id int) (*Equipment, error) {
	var equipment Equipment
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&equipment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &equipment, nil
}

// EquipmentOptionsForSelect returns the flattened equipment tree.
// excludeId (when non-zero) removes that equipment and its whole subtree,
// so an edit form cannot pick itself or a descendant as parent.
func EquipmentOptionsForSelect(ctx context.Context, excludeId int) ([]EquipmentOption, error) {
	var all []Equipment
	db := config.GetDB()
	if err := db.WithContext(ctx).Order("name").Find(&all).Error; err != nil {
		return nil, err
	}
	return BuildEquipmentOptions(all, excludeId), nil
}

// BuildEquipmentOptions flattens the tree depth-first, children sorted by
// name under each parent. Nodes reachable through a parent cycle are
// visited once; orphans (parent id pointing at a missing row) are skipped.
func BuildEquipmentOptions(all []Equipment, excludeId int) []EquipmentOption {
	excluded := map[int]bool{}
	if excludeId != 0 {
		excluded[excludeId] = true
		for _, id := range equipmentDescendantIds(all, excludeId) {
			excluded[id] = true
		}
	}

	byParent := map[int][]Equipment{}
	for _, e := range all {
		parentId := 0
		if e.ParentId != nil {
			parentId = *e.ParentId
		}
		byParent[parentId] = append(byParent[parentId], e)
	}
	for _, children := range byParent {
		sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	}

	result := []EquipmentOption{}
	visited := map[int]bool{}
	var flatten func(items []Equipment, depth int)
	flatten = func(items []Equipment, depth int) {
		for _, item := range items {
			if excluded[item.ID] || visited[item.ID] {
				continue
			}
			visited[item.ID] = true
			indent := ""
			if depth > 0 {
				indent = strings.Repeat("　", depth) + "└ "
			}
			result = append(result, EquipmentOption{
				ID:           item.ID,
				Name:         item.Name,
				DisplayLabel: indent + item.Name,
				Depth:        depth,
			})
			flatten(byParent[item.ID], depth+1)
		}
	}
	flatten(byParent[0], 0)

	return result
}

// EquipmentChildrenByParentId maps parent id -> direct children, for
// cascading equipment selects.
func EquipmentChildrenByParentId(ctx context.Context) (map[int][]EquipmentOption, error) {
	var all []Equipment
	db := config.GetDB()
	if err := db.WithContext(ctx).Order("name").Find(&all).Error; err != nil {
		return nil, err
	}

	out := map[int][]EquipmentOption{}
	for _, e := range all {
		parentId := 0
		if e.ParentId != nil {
			parentId = *e.ParentId
		}
		out[parentId] = append(out[parentId], EquipmentOption{ID: e.ID, Name: e.Name, DisplayLabel: e.Name})
	}
	return out, nil
}

// equipmentDescendantIds returns the ids of every descendant of id
// (id itself not included). Cycle-safe.
func equipmentDescendantIds(all []Equipment, id int) []int {
	byParent := map[int][]Equipment{}
	for _, e := range all {
		if e.ParentId != nil {
			byParent[*e.ParentId] = append(byParent[*e.ParentId], e)
		}
	}

	seen := map[int]bool{id: true}
	ids := []int{}
	var collect func(parentId int)
	collect = func(parentId int) {
		for _, child := range byParent[parentId] {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			ids = append(ids, child.ID)
			collect(child.ID)
		}
	}
	collect(id)

	return ids
}
