package reports

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/meditech/medlink_backend/models"
	"bitbucket.org/meditech/medlink_backend/workflow"
)

// VerifyClientEquipment re-derives every link a client holds against today's
// evidence and directory. A committed link is never changed here; the report
// only says whether the evidence still supports it.
func VerifyClientEquipment(ctx context.Context, clientId int64) (*models.ClientEquipmentVerification, error) {
	client, err := models.GetClientById(ctx, clientId)
	if err != nil {
		return nil, err
	}
	links, err := models.GetEquipmentLinksByClient(ctx, clientId)
	if err != nil {
		return nil, err
	}

	ooiIds := make([]int, 0, len(links))
	for _, link := range links {
		ooiIds = append(ooiIds, link.EquipmentId)
	}
	equipment, err := models.GetLegacyEquipmentByIds(ctx, ooiIds)
	if err != nil {
		return nil, err
	}
	snap, err := workflow.LoadLegacySnapshot(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := models.LoadClientIndex(ctx)
	if err != nil {
		return nil, err
	}

	return verifyEquipment(client, links, equipment, snap, idx), nil
}

// verifyEquipment is the pure core: for each link, run every strategy and
// record which ones still resolve to the linked client.
func verifyEquipment(
	client *models.Client,
	links []*models.EquipmentLink,
	equipment map[int]*models.LegacyEquipmentItem,
	snap *workflow.LegacySnapshot,
	idx *models.ClientIndex,
) *models.ClientEquipmentVerification {
	result := &models.ClientEquipmentVerification{
		ClientId:    client.Id,
		ClientName:  client.Name,
		Equipment:   []*models.EquipmentVerification{},
		GeneratedAt: time.Now().UTC(),
	}

	for _, link := range links {
		ev := &models.EquipmentVerification{
			OoiId:                link.EquipmentId,
			LinkedMethod:         link.Method,
			LinkedAt:             link.LinkedAt,
			CorroboratingMethods: []models.LinkingMethod{},
		}
		result.Equipment = append(result.Equipment, ev)

		item, ok := equipment[link.EquipmentId]
		if !ok {
			ev.Issues = append(ev.Issues, "legacy equipment row no longer exists")
			result.IssueCount++
			continue
		}
		ev.SerialNumber = item.SerialNumber
		ev.ModelName = item.ModelName

		originalCorroborates := false
		for _, strategy := range workflow.LinkingStrategies() {
			cusId, resolved := strategy.Resolve(snap, item)
			if !resolved {
				continue
			}
			resolvedClientId, err := idx.Resolve(cusId)
			if err != nil {
				ev.Issues = append(ev.Issues,
					fmt.Sprintf("method %s resolves customer %d but the directory cannot place it: %v",
						strategy.Method(), cusId, err))
				continue
			}
			if resolvedClientId == link.ClientId {
				ev.CorroboratingMethods = append(ev.CorroboratingMethods, strategy.Method())
				if strategy.Method() == link.Method {
					originalCorroborates = true
				}
			} else {
				ev.Issues = append(ev.Issues,
					fmt.Sprintf("method %s now resolves to client %d instead", strategy.Method(), resolvedClientId))
			}
		}

		if len(ev.CorroboratingMethods) == 0 {
			ev.Issues = append(ev.Issues, "no method corroborates this link anymore")
		} else if !originalCorroborates {
			ev.Issues = append(ev.Issues,
				fmt.Sprintf("original method %s no longer corroborates this link", link.Method))
		}
		if len(ev.Issues) > 0 {
			result.IssueCount++
		}
	}
	return result
}
