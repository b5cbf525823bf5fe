// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/ffutop/vacuum-controller/internal/slave/mirror"
	"github.com/ffutop/vacuum-controller/internal/slave/model"
	"github.com/ffutop/vacuum-controller/internal/vacuum"
	"github.com/ffutop/vacuum-controller/modbus"
)

var (
	regsMirror    string
	regsOneBased  bool
	regsPrecision int
)

var regsCmd = &cobra.Command{
	Use:   "regs",
	Short: "Print the register map",
	Long: `Print the holding register map of the controller.

With --mirror the current values are read from the register mirror of a
running vacuumd (mirror.type: mmap).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var r *mirror.Reader
		if regsMirror != "" {
			var err error
			r, err = mirror.OpenReader(regsMirror)
			if err != nil {
				return err
			}
			defer r.Close()
		}
		return printRegisters(cmd.OutOrStdout(), r, regsOneBased, regsPrecision)
	},
}

func init() {
	regsCmd.Flags().StringVarP(&regsMirror, "mirror", "m", "", "Read values from this register mirror")
	regsCmd.Flags().BoolVar(&regsOneBased, "one-based", false, "Print wire addresses of a one-based slave")
	regsCmd.Flags().IntVar(&regsPrecision, "precision", 2, "Decimal places of float values")
	rootCmd.AddCommand(regsCmd)
}

func printRegisters(w io.Writer, r *mirror.Reader, oneBased bool, precision int) error {
	headers := []string{"Address", "Name", "Type", "Access"}
	if r != nil {
		headers = append(headers, "Value")
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...)

	for _, info := range vacuum.RegisterMap {
		addr := int(info.Address)
		if oneBased {
			addr++
		}
		row := []string{strconv.Itoa(addr), info.Name, string(info.Kind), info.Access}
		if r != nil {
			v, err := readRegister(r, info, precision)
			if err != nil {
				return err
			}
			row = append(row, v)
		}
		t.Row(row...)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func readRegister(r *mirror.Reader, info vacuum.RegisterInfo, precision int) (string, error) {
	words, err := r.Read(model.TableHoldingRegisters, info.Address, info.Width)
	if err != nil {
		return "", err
	}
	if info.Kind == vacuum.KindFloat {
		return strconv.FormatFloat(modbus.Round(modbus.DecodeFloat(words), precision), 'f', -1, 64), nil
	}
	return strconv.Itoa(int(words[0])), nil
}
