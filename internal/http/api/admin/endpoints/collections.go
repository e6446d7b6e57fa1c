package endpoints

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/http/api"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/loopplan"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

type CollectionEditor interface {
	Create(ctx context.Context, id *model.Identity, in loopplan.CollectionInput) (*model.TextCollection, error)
	Get(ctx context.Context, id *model.Identity, collectionID int64) (*model.TextCollection, error)
	Update(ctx context.Context, id *model.Identity, collectionID int64, in loopplan.CollectionInput) (*model.TextCollection, error)
}

// CollectionModule serves shared text that text modules reference by id.
func CollectionModule(collections CollectionEditor) api.Module {
	return api.ModuleFunc(func(c *api.Controller) {
		c.POST("/text-collections", func(ctx *gin.Context, id *model.Identity) (any, *api.Error) {
			var in loopplan.CollectionInput
			if err := ctx.ShouldBindJSON(&in); err != nil {
				return nil, api.BadRequest(err)
			}
			created, err := collections.Create(ctx.Request.Context(), id, in)
			if err != nil {
				return nil, api.Fail(err)
			}
			return created, nil
		})

		c.GET("/text-collections/:id", func(ctx *gin.Context, id *model.Identity) (any, *api.Error) {
			collectionID, pathErr := pathID(ctx)
			if pathErr != nil {
				return nil, pathErr
			}
			found, err := collections.Get(ctx.Request.Context(), id, collectionID)
			if err != nil {
				return nil, api.Fail(err)
			}
			return found, nil
		})

		// PUT moves the marker of every loop showing the collection.
		c.PUT("/text-collections/:id", func(ctx *gin.Context, id *model.Identity) (any, *api.Error) {
			collectionID, pathErr := pathID(ctx)
			if pathErr != nil {
				return nil, pathErr
			}
			var in loopplan.CollectionInput
			if err := ctx.ShouldBindJSON(&in); err != nil {
				return nil, api.BadRequest(err)
			}
			updated, err := collections.Update(ctx.Request.Context(), id, collectionID, in)
			if err != nil {
				return nil, api.Fail(err)
			}
			return updated, nil
		})
	})
}
