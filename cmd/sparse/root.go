package sparse

import (
	"fmt"
	"github.com/ValentinKolb/dMap/cmd/util"
	"github.com/ValentinKolb/dMap/lib/sparse"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// SparseCmd drives a sparse array from the command line
	SparseCmd = &cobra.Command{
		Use:   "sparse",
		Short: "Insert and remove elements of a sparse array",
		Long: `Insert the given indices into a sparse array (the value of each element is its
insertion position), remove the given indices and ranges and print the resulting
elements together with the result of the tree validation.
Removals are applied after all insertions.`,
		Example: "dmap sparse --insert 4,2,6 --remove-range 3:7",
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			_, err := util.Setup(cmd)
			return err
		},
		RunE: run,
	}
)

func init() {
	key := "insert"
	SparseCmd.Flags().String(key, "", util.WrapString("Comma-separated list of indices to insert (e.g. 4,2,6)"))

	key = "remove"
	SparseCmd.Flags().String(key, "", util.WrapString("Comma-separated list of indices to remove"))

	key = "remove-range"
	SparseCmd.Flags().StringSlice(key, nil, util.WrapString("Half open range FROM:TO of indices to remove, can be repeated"))

	key = "reverse"
	SparseCmd.Flags().Bool(key, false, util.WrapString("Print the elements in descending index order"))
}

func run(_ *cobra.Command, _ []string) error {
	inserts, err := util.ParseInt64List(viper.GetString("insert"))
	if err != nil {
		return err
	}
	removes, err := util.ParseInt64List(viper.GetString("remove"))
	if err != nil {
		return err
	}

	arr := sparse.New[int]()
	for i, idx := range inserts {
		if prev, replaced := arr.Set(idx, i); replaced {
			fmt.Printf("replaced [%d] (was %d)\n", idx, prev)
		}
	}

	for _, idx := range removes {
		if _, ok := arr.Remove(idx); !ok {
			fmt.Printf("index %d not present\n", idx)
		}
	}

	for _, r := range viper.GetStringSlice("remove-range") {
		from, to, err := util.ParseRange(r)
		if err != nil {
			return err
		}
		arr.RemoveRange(from, to)
	}

	seq := arr.All()
	if viper.GetBool("reverse") {
		seq = arr.Backward()
	}

	fmt.Printf("Elements (%d):\n", arr.Len())
	for idx, v := range seq {
		fmt.Printf("  [%d] = %d\n", idx, v)
	}
	if !arr.IsEmpty() {
		fmt.Printf("First: %d, Last: %d\n", arr.FirstIndex(), arr.LastIndex())
	}

	if err := arr.Validate(); err != nil {
		fmt.Printf("Validation: failed (%v)\n", err)
		return err
	}
	fmt.Println("Validation: ok")
	return nil
}
