package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"jobevents/internal/codec"
	"jobevents/internal/model"
)

func newEncodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode event details JSON into a hex payload",
		Long:  "Encode event details JSON into the binary payload the contract emits. Useful for fixtures and for testing decoders.",
		RunE:  runEncode,
	}

	cmd.Flags().String("type", "", "event type name or tag")
	cmd.Flags().String("details", "{}", "details JSON")

	return cmd
}

func runEncode(cmd *cobra.Command, _ []string) error {
	typeName, _ := cmd.Flags().GetString("type")
	raw, _ := cmd.Flags().GetString("details")

	t, err := model.ParseEventType(typeName)
	if err != nil {
		return err
	}
	details, err := parseDetails(t, []byte(raw))
	if err != nil {
		return err
	}
	payload, err := codec.Encode(details)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(payload))
	return err
}

var detailParsers = map[model.EventType]func([]byte) (model.Details, error){
	model.EventCreated:                  parseAs[model.CreatedDetails],
	model.EventUpdated:                  parseAs[model.UpdatedDetails],
	model.EventTaken:                    parseAs[model.TakenDetails],
	model.EventPaid:                     parseAs[model.PaidDetails],
	model.EventSigned:                   parseAs[model.SignedDetails],
	model.EventCompleted:                parseAs[model.CompletedDetails],
	model.EventDelivered:                parseAs[model.DeliveredDetails],
	model.EventClosed:                   parseAs[model.ClosedDetails],
	model.EventReopened:                 parseAs[model.ReopenedDetails],
	model.EventRated:                    parseAs[model.RatedDetails],
	model.EventRefunded:                 parseAs[model.RefundedDetails],
	model.EventDisputed:                 parseAs[model.DisputedDetails],
	model.EventArbitrated:               parseAs[model.ArbitratedDetails],
	model.EventArbitrationRefused:       parseAs[model.ArbitrationRefusedDetails],
	model.EventWhitelistedWorkerAdded:   parseAs[model.WhitelistedWorkerAddedDetails],
	model.EventWhitelistedWorkerRemoved: parseAs[model.WhitelistedWorkerRemovedDetails],
	model.EventCollateralWithdrawn:      parseAs[model.CollateralWithdrawnDetails],
	model.EventWorkerMessage:            parseAs[model.WorkerMessageDetails],
	model.EventOwnerMessage:             parseAs[model.OwnerMessageDetails],
}

func parseDetails(t model.EventType, raw []byte) (model.Details, error) {
	parse, ok := detailParsers[t]
	if !ok {
		return nil, fmt.Errorf("cannot encode event type %s (known: %s)", t, knownEventTypes())
	}
	details, err := parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s details: %w", t, err)
	}
	return details, nil
}

func knownEventTypes() string {
	names := make([]string, 0, len(detailParsers))
	for _, et := range model.EventTypes() {
		names = append(names, et.String())
	}
	return strings.Join(names, ", ")
}

func parseAs[T model.Details](raw []byte) (model.Details, error) {
	var details T
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, err
	}
	return details, nil
}
